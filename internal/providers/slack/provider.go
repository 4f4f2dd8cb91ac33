// Package slack posts escalation reminders to Slack.
package slack

import (
	"context"

	"go.uber.org/zap"
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

// LogProvider stands in when no webhook URL is configured.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	return &LogProvider{log: log.Named("providers.slack")}
}

func (p *LogProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	p.log.Info("slack message not posted, webhook disabled",
		zap.String("channel", channelID),
		zap.Int("length", len(message)),
	)
	return nil
}
