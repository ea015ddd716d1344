package order

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/smallbiznis/pantry/internal/config"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRouter(t *testing.T) {
	router := NewOutboxRouter(config.Config{Services: config.ServiceURLs{Kitchen: "http://kitchen:8003"}})

	created, err := router.Route(outboxdomain.Event{EventType: orderdomain.EventOrderCreated, Payload: []byte(`{"order_id":"ORD1"}`)})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, created.Method)
	assert.Equal(t, "http://kitchen:8003/receive_order", created.URL)

	payload, err := json.Marshal(orderdomain.OrderCancelledPayload{OrderID: "ORD1", Reason: "wrong room"})
	require.NoError(t, err)
	cancelled, err := router.Route(outboxdomain.Event{EventType: orderdomain.EventOrderCancelled, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "http://kitchen:8003/kitchen/update_status/ORD1?reason=wrong+room&status=cancelled", cancelled.URL)

	payload, err = json.Marshal(orderdomain.OrderCancelledPayload{OrderID: "ORD2"})
	require.NoError(t, err)
	cancelled, err = router.Route(outboxdomain.Event{EventType: orderdomain.EventOrderCancelled, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "http://kitchen:8003/kitchen/update_status/ORD2?reason=cancelled+by+system&status=cancelled", cancelled.URL)

	item, err := router.Route(outboxdomain.Event{EventType: orderdomain.EventOrderItemCancelled, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "http://kitchen:8003/kitchen/item_cancelled", item.URL)
}
