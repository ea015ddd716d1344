package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// ReceiveOrder stores a relayed order_created event. A repeated
	// delivery is a successful no-op.
	ReceiveOrder(ctx context.Context, req ReceiveRequest) (*ReceiveResult, error)
	UpdateStatus(ctx context.Context, req UpdateRequest) (*UpdateResult, error)
	ApplyItemCancelled(ctx context.Context, event ItemCancelledEvent) (applied bool, err error)
	// Sync rebuilds the mirror of one order from the order service.
	Sync(ctx context.Context, orderID string) (*SyncResult, error)

	ListOrders(ctx context.Context) ([]Order, error)
	Duration(ctx context.Context, orderID string) (*Durations, error)
	IsOpen(ctx context.Context) (bool, error)
	SetOpen(ctx context.Context, open bool) (*State, error)
}

type ReceiveRequest struct {
	OrderID      string `json:"order_id" binding:"required,notblank"`
	QueueNumber  int    `json:"queue_number" binding:"required,min=1"`
	Orders       []Item `json:"orders" binding:"required,min=1"`
	CustomerName string `json:"customer_name"`
	RoomName     string `json:"room_name"`
	IsPartial    bool   `json:"is_partial"`
}

type ReceiveResult struct {
	OrderID     string    `json:"order_id"`
	QueueNumber int       `json:"queue_number"`
	TimeReceive time.Time `json:"time_receive"`
	Duplicate   bool      `json:"duplicate"`
}

// UpdateRequest changes the status of a mirrored order. EventType is set
// when the change was relayed from the order service; such changes are
// deduplicated and not echoed back.
type UpdateRequest struct {
	OrderID   string
	Status    Status
	Reason    string
	EventType string
}

type UpdateResult struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Applied   bool      `json:"applied"`
}

// ItemCancelledEvent is the order_item_cancelled payload.
type ItemCancelledEvent struct {
	OrderID        string    `json:"order_id"`
	Type           string    `json:"type"`
	CancelledItem  Cancelled `json:"cancelled_item"`
	RemainingItems []Item    `json:"remaining_items"`
	CancelledAt    time.Time `json:"cancelled_at"`
	OrderStatus    Status    `json:"order_status"`
}

type Cancelled struct {
	Item
	Reason string `json:"reason"`
}

type SyncResult struct {
	OrderID        string `json:"order_id"`
	Status         Status `json:"status"`
	ActiveItems    int    `json:"active_items"`
	CancelledItems int    `json:"cancelled_items"`
}

// Durations are in seconds; a stage not reached yet is nil.
type Durations struct {
	MakingToDeliver *float64 `json:"making_to_deliver,omitempty"`
	MakingToDone    *float64 `json:"making_to_done,omitempty"`
}

// StatusChangedPayload is published when the kitchen moves an order.
type StatusChangedPayload struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

const EventOrderStatusChanged = "order_status_changed"

var (
	ErrInvalidOrderID    = errors.New("invalid_order_id")
	ErrNotFound          = errors.New("kitchen_order_not_found")
	ErrKitchenClosed     = errors.New("kitchen_closed")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrReasonRequired    = errors.New("reason_required")
	ErrOrderUnavailable  = errors.New("order_service_unavailable")
)
