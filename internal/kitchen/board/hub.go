// Package board fans kitchen display snapshots out to stream subscribers.
package board

import (
	"errors"
	"sync"
	"time"

	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
)

const DefaultSubscriberBuffer = 8

var ErrHubUnavailable = errors.New("hub_unavailable")

// Ticket is one active order as the display renders it.
type Ticket struct {
	ID               string    `json:"id"`
	QueueNumber      int       `json:"queue_number"`
	Menu             string    `json:"menu"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	TimestampReceive time.Time `json:"timestamp_receive"`
	CustomerName     string    `json:"customer_name"`
	RoomName         string    `json:"room_name"`
	CancelReason     string    `json:"cancel_reason"`
}

type Snapshot struct {
	Orders []Ticket `json:"orders"`
}

// SnapshotOf renders the orders still in progress.
func SnapshotOf(orders []kitchendomain.Order) Snapshot {
	tickets := make([]Ticket, 0, len(orders))
	for _, o := range orders {
		if o.Status.Terminal() {
			continue
		}
		cancelReason := ""
		if o.CancelReason != nil {
			cancelReason = *o.CancelReason
		}
		tickets = append(tickets, Ticket{
			ID:               o.OrderID,
			QueueNumber:      o.QueueNumber,
			Menu:             o.Detail,
			Status:           string(o.Status),
			Timestamp:        o.LastChange(),
			TimestampReceive: o.TimeReceive,
			CustomerName:     o.CustomerName,
			RoomName:         o.RoomName,
			CancelReason:     cancelReason,
		})
	}
	return Snapshot{Orders: tickets}
}

// Hub keeps the latest snapshot and pushes every new one to subscribers.
// Slow subscribers miss intermediate snapshots, never the hub.
type Hub struct {
	mu               sync.Mutex
	latest           *Snapshot
	subs             map[uint64]chan Snapshot
	nextID           uint64
	subscriberBuffer int
}

type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Snapshot
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:             make(map[uint64]chan Snapshot),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(snapshot Snapshot) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.latest = &snapshot
	subs := make([]chan Snapshot, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Subscribe returns the subscription and the latest snapshot, if any.
func (h *Hub) Subscribe() (*Subscription, *Snapshot, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Snapshot, h.subscriberBuffer)
	h.subs[id] = ch
	var latest *Snapshot
	if h.latest != nil {
		copied := *h.latest
		latest = &copied
	}
	return &Subscription{hub: h, id: id, ch: ch}, latest, nil
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Snapshot {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}
