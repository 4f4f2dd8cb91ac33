package keystone

import (
	"github.com/smallbiznis/spendwise/internal/keystone/service"
	"go.uber.org/fx"
)

var Module = fx.Module("keystone.service",
	fx.Provide(service.NewService),
)
