package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusReceive   Status = "receive"
	StatusMaking    Status = "making"
	StatusDeliver   Status = "deliver"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusHabis     Status = "habis"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReceive, StatusMaking, StatusDeliver, StatusDone, StatusCancelled, StatusHabis:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusHabis
}

// Aborted reports whether the order ended without being served.
func (s Status) Aborted() bool {
	return s == StatusCancelled || s == StatusHabis
}

var forward = map[Status]Status{
	StatusReceive: StatusMaking,
	StatusMaking:  StatusDeliver,
	StatusDeliver: StatusDone,
}

// CanTransition reports whether an order may move from s to next:
// receive, making, deliver, done in order, or any active status to
// cancelled or habis.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next.Aborted() {
		return true
	}
	return forward[s] == next
}

// StockState tracks the post-commit stock consumption of an order.
type StockState string

const (
	StockPending         StockState = "pending"
	StockConsumed        StockState = "consumed"
	StockFailed          StockState = "failed"
	StockRollbackPending StockState = "rollback_pending"
	StockCompensated     StockState = "compensated"
)

type ItemStatus string

const (
	ItemActive    ItemStatus = "active"
	ItemCancelled ItemStatus = "cancelled"
)

type Room struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:varchar(191);not null;uniqueIndex:ux_rooms_name"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Room) TableName() string { return "rooms" }

// Order is one customer order. Queue numbers restart every Asia/Jakarta
// business day.
type Order struct {
	OrderID       string     `json:"order_id" gorm:"primaryKey;type:varchar(64)"`
	QueueNumber   int        `json:"queue_number" gorm:"not null;uniqueIndex:ux_orders_queue,priority:2"`
	QueueDate     string     `json:"queue_date" gorm:"type:varchar(10);not null;uniqueIndex:ux_orders_queue,priority:1"`
	CustomerName  string     `json:"customer_name" gorm:"type:varchar(191);not null"`
	RoomName      string     `json:"room_name" gorm:"type:varchar(191);not null"`
	Status        Status     `json:"status" gorm:"type:varchar(16);not null;index"`
	CancelReason  *string    `json:"cancel_reason" gorm:"type:text"`
	IsPartial     bool       `json:"is_partial" gorm:"not null;default:false"`
	StockState    StockState `json:"stock_state" gorm:"type:varchar(24);not null;index"`
	StockAttempts int        `json:"stock_attempts" gorm:"not null;default:0"`
	StockError    *string    `json:"stock_error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"not null"`

	Items []Item `json:"items,omitempty" gorm:"foreignKey:OrderID;references:OrderID"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) ActiveItems() []Item {
	return o.itemsWith(ItemActive)
}

func (o *Order) CancelledItems() []Item {
	return o.itemsWith(ItemCancelled)
}

func (o *Order) itemsWith(status ItemStatus) []Item {
	out := make([]Item, 0, len(o.Items))
	for _, item := range o.Items {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out
}

// Item is one order line. StockReleased is false while a cancelled line
// may still hold consumed stock, including lines cancelled while the
// order's consume was in flight.
type Item struct {
	ID              snowflake.ID `json:"item_id" gorm:"primaryKey"`
	OrderID         string       `json:"order_id" gorm:"type:varchar(64);not null;index"`
	MenuName        string       `json:"menu_name" gorm:"type:varchar(191);not null"`
	Quantity        int          `json:"quantity" gorm:"not null"`
	Preference      string       `json:"preference" gorm:"type:varchar(191);not null;default:''"`
	Notes           string       `json:"notes" gorm:"type:text"`
	Status          ItemStatus   `json:"status" gorm:"type:varchar(16);not null"`
	CancelledReason *string      `json:"cancelled_reason,omitempty" gorm:"type:text"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	StockReleased   bool         `json:"-" gorm:"not null"`
}

func (Item) TableName() string { return "order_items" }

// Label renders "Caffe Latte (Vanilla)".
func (i Item) Label() string {
	if i.Preference == "" {
		return i.MenuName
	}
	return i.MenuName + " (" + i.Preference + ")"
}
