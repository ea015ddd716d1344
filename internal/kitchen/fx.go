package kitchen

import (
	"github.com/smallbiznis/pantry/internal/kitchen/board"
	"github.com/smallbiznis/pantry/internal/kitchen/repository"
	"github.com/smallbiznis/pantry/internal/kitchen/service"
	"go.uber.org/fx"
)

var Module = fx.Module("kitchen.service",
	fx.Provide(board.NewHub),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
