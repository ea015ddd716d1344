package order

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/smallbiznis/pantry/internal/config"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	outboxservice "github.com/smallbiznis/pantry/internal/outbox/service"
)

const defaultCancelReason = "cancelled by system"

// NewOutboxRouter routes order events to the kitchen service.
func NewOutboxRouter(cfg config.Config) outboxdomain.Router {
	kitchen := cfg.Services.Kitchen
	return outboxservice.NewRouter(
		outboxservice.Route{
			EventType: orderdomain.EventOrderCreated,
			Method:    http.MethodPost,
			URL:       kitchen + "/receive_order",
		},
		outboxservice.Route{
			EventType: orderdomain.EventOrderCancelled,
			Method:    http.MethodPost,
			Build: func(event outboxdomain.Event) (string, []byte, error) {
				var payload orderdomain.OrderCancelledPayload
				if err := json.Unmarshal(event.Payload, &payload); err != nil {
					return "", nil, fmt.Errorf("decode %s payload: %w", event.EventType, err)
				}
				reason := strings.TrimSpace(payload.Reason)
				if reason == "" {
					reason = defaultCancelReason
				}
				query := url.Values{}
				query.Set("status", string(orderdomain.StatusCancelled))
				query.Set("reason", reason)
				target := fmt.Sprintf("%s/kitchen/update_status/%s?%s",
					kitchen, url.PathEscape(payload.OrderID), query.Encode())
				return target, []byte(event.Payload), nil
			},
		},
		outboxservice.Route{
			EventType: orderdomain.EventOrderItemCancelled,
			Method:    http.MethodPost,
			URL:       kitchen + "/kitchen/item_cancelled",
		},
	)
}
