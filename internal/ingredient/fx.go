package ingredient

import (
	"github.com/smallbiznis/pantry/internal/ingredient/repository"
	"github.com/smallbiznis/pantry/internal/ingredient/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingredient.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
