package kitchen

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/smallbiznis/pantry/internal/config"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRouterSendsStatusToOrderService(t *testing.T) {
	router := NewOutboxRouter(config.Config{Services: config.ServiceURLs{Order: "http://order:8002"}})

	payload, err := json.Marshal(kitchendomain.StatusChangedPayload{OrderID: "ORD1", Status: orderdomain.StatusMaking})
	require.NoError(t, err)
	delivery, err := router.Route(outboxdomain.Event{EventType: kitchendomain.EventOrderStatusChanged, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, delivery.Method)
	assert.Equal(t, "http://order:8002/internal/update_status/ORD1", delivery.URL)
	assert.JSONEq(t, string(payload), string(delivery.Body))
}
