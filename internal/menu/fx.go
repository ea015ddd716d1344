package menu

import "go.uber.org/fx"

var Module = fx.Module("menu.client",
	fx.Provide(NewClient),
)
