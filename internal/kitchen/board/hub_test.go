package board

import (
	"testing"
	"time"

	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversLatestSnapshot(t *testing.T) {
	hub := NewHub()
	hub.Publish(Snapshot{Orders: []Ticket{{ID: "ORD1"}}})

	sub, latest, err := hub.Subscribe()
	require.NoError(t, err)
	defer sub.Close()
	require.NotNil(t, latest)
	assert.Equal(t, "ORD1", latest.Orders[0].ID)

	hub.Publish(Snapshot{Orders: []Ticket{{ID: "ORD2"}}})
	got := <-sub.Events()
	assert.Equal(t, "ORD2", got.Orders[0].ID)
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe()
	require.NoError(t, err)

	for i := 0; i < DefaultSubscriberBuffer*2; i++ {
		hub.Publish(Snapshot{})
	}
	assert.Len(t, sub.Events(), DefaultSubscriberBuffer)

	sub.Close()
	sub.Close()
	assert.Zero(t, hub.Subscribers())
}

func TestNilHub(t *testing.T) {
	var hub *Hub
	hub.Publish(Snapshot{})
	_, _, err := hub.Subscribe()
	assert.ErrorIs(t, err, ErrHubUnavailable)
}

func TestSnapshotOfSkipsFinishedOrders(t *testing.T) {
	received := time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC)
	making := received.Add(time.Minute)
	reason := "Out of stock"
	snap := SnapshotOf([]kitchendomain.Order{
		{OrderID: "A", QueueNumber: 1, Status: orderdomain.StatusMaking, TimeReceive: received, TimeMaking: &making, UpdatedAt: making},
		{OrderID: "B", QueueNumber: 2, Status: orderdomain.StatusDone, TimeReceive: received, UpdatedAt: received},
		{OrderID: "C", QueueNumber: 3, Status: orderdomain.StatusHabis, CancelReason: &reason, TimeReceive: received, UpdatedAt: received},
	})

	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "A", snap.Orders[0].ID)
	assert.Equal(t, "making", snap.Orders[0].Status)
	assert.Equal(t, received, snap.Orders[0].TimestampReceive)
}
