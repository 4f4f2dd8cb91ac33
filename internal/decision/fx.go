package decision

import (
	"github.com/smallbiznis/spendwise/internal/decision/repository"
	"github.com/smallbiznis/spendwise/internal/decision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("decision.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
