package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/audit"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/config"
	"github.com/smallbiznis/spendwise/internal/decision"
	"github.com/smallbiznis/spendwise/internal/dependency"
	"github.com/smallbiznis/spendwise/internal/escalation"
	"github.com/smallbiznis/spendwise/internal/keystone"
	"github.com/smallbiznis/spendwise/internal/notification"
	"github.com/smallbiznis/spendwise/internal/observability"
	"github.com/smallbiznis/spendwise/internal/providers"
	"github.com/smallbiznis/spendwise/internal/scheduler"
	"github.com/smallbiznis/spendwise/internal/subscription"
	"github.com/smallbiznis/spendwise/internal/tool"
	"github.com/smallbiznis/spendwise/internal/usage"
	"github.com/smallbiznis/spendwise/internal/user"
	"github.com/smallbiznis/spendwise/pkg/db"
	pkglog "github.com/smallbiznis/spendwise/pkg/log"
	"github.com/smallbiznis/spendwise/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		// The worker exists to run jobs, whatever SCHEDULER_ENABLED says.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.SchedulerEnabled = true
			return cfg
		}),
		pkglog.Module,
		telemetry.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		audit.Module,

		// Domain services required by scheduler
		user.Module,
		tool.Module,
		subscription.Module,
		usage.Module,
		dependency.Module,
		keystone.Module,
		providers.Module,
		notification.Module,
		escalation.Module,
		decision.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake uses node 2 so worker ids never collide with the API
// process on node 1.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
