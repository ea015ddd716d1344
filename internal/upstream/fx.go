package upstream

import "go.uber.org/fx"

// StockModule provides the inventory client used by order intake.
var StockModule = fx.Module("upstream.stock",
	fx.Provide(NewStockClient),
)

var KitchenModule = fx.Module("upstream.kitchen",
	fx.Provide(NewKitchenClient),
)

var OrderModule = fx.Module("upstream.order",
	fx.Provide(NewOrderClient),
)
