// Package sms carries short text messages to phones. Only a logging
// provider ships; a gateway plugs in behind Provider.
package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/spendwise/internal/audit/masking"
	"go.uber.org/zap"
)

type Transport string

const (
	TransportSMS      Transport = "sms"
	TransportWhatsApp Transport = "whatsapp"
)

var ErrMissingPhone = errors.New("sms_missing_phone")

type Provider interface {
	Send(ctx context.Context, transport Transport, phone string, text string) error
}

// LogProvider records messages in the log instead of sending them.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("providers.sms")}
}

func (p *LogProvider) Send(ctx context.Context, transport Transport, phone string, text string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrMissingPhone
	}
	p.log.Info("text message",
		zap.String("transport", string(transport)),
		zap.String("phone", masking.MaskSecret(phone)),
		zap.Int("length", len(text)),
	)
	return nil
}
