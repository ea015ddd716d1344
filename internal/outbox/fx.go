package outbox

import (
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/internal/outbox/repository"
	"github.com/smallbiznis/pantry/internal/outbox/service"
	"github.com/smallbiznis/pantry/internal/scheduler"
	"go.uber.org/fx"
)

// Module wires the publisher and relay. The owning app provides the
// outboxdomain.Router for its event types.
var Module = fx.Module("outbox",
	fx.Provide(repository.Provide),
	fx.Provide(service.ProvideConfig),
	fx.Provide(service.NewPublisher),
	fx.Provide(func() outboxdomain.Sender { return service.NewHTTPSender(nil) }),
	fx.Provide(service.NewKafkaTap),
	fx.Provide(service.NewRelay),
	fx.Provide(func(r *service.Relay) outboxdomain.Relay { return r }),
	fx.Provide(scheduler.AsJob(func(r *service.Relay) scheduler.Job { return r.Job() })),
)
