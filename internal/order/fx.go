package order

import (
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"github.com/smallbiznis/pantry/internal/order/repository"
	"github.com/smallbiznis/pantry/internal/order/service"
	"github.com/smallbiznis/pantry/internal/scheduler"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) orderdomain.Service { return s }),
	fx.Provide(scheduler.AsJob(func(s *service.Service) scheduler.Job { return s.Job() })),
)
