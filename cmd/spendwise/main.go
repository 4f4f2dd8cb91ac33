package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/spendwise/internal/audit"
	"github.com/smallbiznis/spendwise/internal/authorization"
	"github.com/smallbiznis/spendwise/internal/clock"
	"github.com/smallbiznis/spendwise/internal/config"
	"github.com/smallbiznis/spendwise/internal/decision"
	"github.com/smallbiznis/spendwise/internal/dependency"
	"github.com/smallbiznis/spendwise/internal/escalation"
	"github.com/smallbiznis/spendwise/internal/keystone"
	"github.com/smallbiznis/spendwise/internal/migration"
	"github.com/smallbiznis/spendwise/internal/notification"
	"github.com/smallbiznis/spendwise/internal/observability"
	"github.com/smallbiznis/spendwise/internal/providers"
	"github.com/smallbiznis/spendwise/internal/scheduler"
	"github.com/smallbiznis/spendwise/internal/server"
	"github.com/smallbiznis/spendwise/internal/subscription"
	"github.com/smallbiznis/spendwise/internal/tool"
	"github.com/smallbiznis/spendwise/internal/usage"
	"github.com/smallbiznis/spendwise/internal/user"
	"github.com/smallbiznis/spendwise/pkg/db"
	pkglog "github.com/smallbiznis/spendwise/pkg/log"
	"github.com/smallbiznis/spendwise/pkg/telemetry"
	"go.uber.org/fx"
)

// API and scheduler in one process. The scheduler only starts when
// SCHEDULER_ENABLED is set.
func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		pkglog.Module,
		telemetry.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		audit.Module,
		authorization.Module,

		// Read side of the collaborators
		user.Module,
		tool.Module,
		subscription.Module,
		usage.Module,
		dependency.Module,

		// Governance core
		keystone.Module,
		providers.Module,
		notification.Module,
		escalation.Module,
		decision.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
