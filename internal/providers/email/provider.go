// Package email delivers rendered escalation messages over SMTP.
package email

import (
	"context"
	"strings"

	"github.com/smallbiznis/spendwise/internal/audit/masking"
	"go.uber.org/zap"
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// LogProvider stands in when no SMTP host is configured. Deliveries are
// logged and reported as sent.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("providers.email")}
}

func (p *LogProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	masked := make([]string, 0, len(to))
	for _, addr := range to {
		masked = append(masked, masking.MaskSecret(strings.TrimSpace(addr)))
	}
	p.log.Info("email not sent, smtp disabled",
		zap.Strings("to", masked),
		zap.String("subject", subject),
		zap.Int("length", len(htmlBody)),
	)
	return nil
}
