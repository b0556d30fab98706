package billing

import (
	"github.com/smallbiznis/milkbill/internal/billing/repository"
	"github.com/smallbiznis/milkbill/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
