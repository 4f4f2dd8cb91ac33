package dependency

import (
	"github.com/smallbiznis/spendwise/internal/dependency/repository"
	"github.com/smallbiznis/spendwise/internal/dependency/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dependency.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
