package audit

import (
	"github.com/smallbiznis/spendwise/internal/audit/repository"
	"github.com/smallbiznis/spendwise/internal/audit/service"
	"go.uber.org/fx"
)

// Module records the governance trail: decisions, responses and denied
// authorizations.
var Module = fx.Module("audit.trail",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
