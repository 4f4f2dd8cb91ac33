package slack

import (
	"strings"

	"github.com/smallbiznis/spendwise/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	url := strings.TrimSpace(cfg.Slack.WebhookURL)
	if url == "" {
		return NewLogProvider(log)
	}
	return NewWebhook(url, nil)
}
