package providers

import (
	"github.com/smallbiznis/spendwise/internal/providers/email"
	"github.com/smallbiznis/spendwise/internal/providers/slack"
	"github.com/smallbiznis/spendwise/internal/providers/sms"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
	sms.Module,
)
