package tool

import (
	"github.com/smallbiznis/spendwise/internal/tool/repository"
	"github.com/smallbiznis/spendwise/internal/tool/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tool.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
