// Package app assembles the fx graphs of the three services.
package app

import (
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/internal/flavor"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	"github.com/smallbiznis/pantry/internal/idempotency"
	"github.com/smallbiznis/pantry/internal/ingredient"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"github.com/smallbiznis/pantry/internal/kitchen"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	"github.com/smallbiznis/pantry/internal/lease"
	"github.com/smallbiznis/pantry/internal/menu"
	"github.com/smallbiznis/pantry/internal/migration"
	"github.com/smallbiznis/pantry/internal/observability"
	"github.com/smallbiznis/pantry/internal/order"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"github.com/smallbiznis/pantry/internal/outbox"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/internal/scheduler"
	"github.com/smallbiznis/pantry/internal/server"
	"github.com/smallbiznis/pantry/internal/stock"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
	"github.com/smallbiznis/pantry/pkg/db"
	"go.uber.org/fx"
)

func init() {
	// quantities travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Default listen addresses, matching the ports the services have always
// been reached on.
var defaultAddr = map[string]string{
	"inventory": ":8006",
	"order":     ":8002",
	"kitchen":   ":8003",
}

// identify names the running service in logs and traces and picks its
// listen address unless the environment already set them.
func identify(service string) func(config.Config) config.Config {
	return func(cfg config.Config) config.Config {
		if cfg.AppName == "" {
			cfg.AppName = "pantry-" + service
		}
		if cfg.HTTPAddr == "" {
			cfg.HTTPAddr = defaultAddr[service]
		}
		return cfg
	}
}

// core is shared by every service: config, logging and tracing, the
// database, the outbox relay and the scheduler that drives it.
func core(schema migration.Schema) fx.Option {
	return fx.Options(
		config.Module,
		fx.Decorate(identify(schema.Name)),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		fx.Supply(schema),
		migration.Module,
		lease.Module,
		scheduler.Module,
		outbox.Module,
		server.Module,
	)
}

func Inventory() fx.Option {
	return fx.Options(
		core(migration.Schema{
			Name: "inventory",
			Models: []any{
				&ingredientdomain.Ingredient{},
				&ingredientdomain.StockHistory{},
				&flavordomain.Mapping{},
				&stockdomain.ConsumptionRecord{},
				&stockdomain.ConsumptionDetail{},
				&outboxdomain.Event{},
			},
		}),
		menu.Module,
		ingredient.Module,
		flavor.Module,
		stock.Module,
		fx.Provide(ingredient.NewOutboxRouter),
	)
}

func Order() fx.Option {
	return fx.Options(
		core(migration.Schema{
			Name: "order",
			Models: []any{
				&orderdomain.Room{},
				&orderdomain.Order{},
				&orderdomain.Item{},
				&outboxdomain.Event{},
				&idempotency.Key{},
			},
		}),
		idempotency.Module,
		menu.Module,
		upstream.StockModule,
		upstream.KitchenModule,
		order.Module,
		fx.Provide(order.NewOutboxRouter),
	)
}

func Kitchen() fx.Option {
	return fx.Options(
		core(migration.Schema{
			Name: "kitchen",
			Models: []any{
				&kitchendomain.State{},
				&kitchendomain.Order{},
				&outboxdomain.Event{},
				&idempotency.Key{},
			},
		}),
		idempotency.Module,
		upstream.OrderModule,
		kitchen.Module,
		fx.Provide(kitchen.NewOutboxRouter),
	)
}

var services = map[string]func() fx.Option{
	"inventory": Inventory,
	"order":     Order,
	"kitchen":   Kitchen,
}

// ByName returns the graph of one service.
func ByName(name string) (fx.Option, error) {
	build, ok := services[name]
	if !ok {
		return nil, fmt.Errorf("unknown service %q (want one of %v)", name, Names())
	}
	return build(), nil
}

func Names() []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
