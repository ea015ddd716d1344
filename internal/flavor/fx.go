package flavor

import (
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	"github.com/smallbiznis/pantry/internal/flavor/repository"
	"github.com/smallbiznis/pantry/internal/flavor/service"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("flavor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s flavordomain.Service) ingredientdomain.FlavorDefaulter { return s }),
)
