package kitchen

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/smallbiznis/pantry/internal/config"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	outboxservice "github.com/smallbiznis/pantry/internal/outbox/service"
)

// NewOutboxRouter routes kitchen status changes back to the order service.
func NewOutboxRouter(cfg config.Config) outboxdomain.Router {
	order := cfg.Services.Order
	return outboxservice.NewRouter(
		outboxservice.Route{
			EventType: kitchendomain.EventOrderStatusChanged,
			Method:    http.MethodPost,
			Build: func(event outboxdomain.Event) (string, []byte, error) {
				var payload kitchendomain.StatusChangedPayload
				if err := json.Unmarshal(event.Payload, &payload); err != nil {
					return "", nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
				}
				return order + "/internal/update_status/" + url.PathEscape(payload.OrderID), []byte(event.Payload), nil
			},
		},
	)
}
