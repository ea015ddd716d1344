package domain

import (
	"fmt"
	"strings"
	"time"

	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"gorm.io/datatypes"
)

// Status is shared with the order service; the kitchen applies the same
// state machine to its mirror.
type Status = orderdomain.Status

const stateID = "kitchen"

// State is the single on/off switch of the kitchen.
type State struct {
	ID        string    `json:"-" gorm:"primaryKey;type:varchar(16)"`
	IsOpen    bool      `json:"is_open" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (State) TableName() string { return "kitchen_status" }

func NewState(open bool, now time.Time) *State {
	return &State{ID: stateID, IsOpen: open, UpdatedAt: now}
}

// Item is one line of the kitchen ticket.
type Item struct {
	ItemID     int64  `json:"item_id,omitempty"`
	MenuName   string `json:"menu_name"`
	Quantity   int    `json:"quantity"`
	Preference string `json:"preference,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Line renders "2x Caffe Latte (Vanilla) - Notes: less sugar".
func (i Item) Line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dx %s", i.Quantity, i.MenuName)
	if i.Preference != "" {
		b.WriteString(" (" + i.Preference + ")")
	}
	if i.Notes != "" {
		b.WriteString(" - Notes: " + i.Notes)
	}
	return b.String()
}

// Order mirrors an order on the kitchen display. Items holds the active
// lines only.
type Order struct {
	OrderID      string                    `json:"order_id" gorm:"primaryKey;type:varchar(64)"`
	QueueNumber  int                       `json:"queue_number" gorm:"not null"`
	Status       Status                    `json:"status" gorm:"type:varchar(16);not null;index"`
	Detail       string                    `json:"detail" gorm:"type:text"`
	CustomerName string                    `json:"customer_name" gorm:"type:varchar(191)"`
	RoomName     string                    `json:"room_name" gorm:"type:varchar(191)"`
	CancelReason *string                   `json:"cancel_reason" gorm:"type:text"`
	Items        datatypes.JSONSlice[Item] `json:"items"`
	TimeReceive  time.Time                 `json:"time_receive" gorm:"not null;index"`
	TimeMaking   *time.Time                `json:"time_making,omitempty"`
	TimeDeliver  *time.Time                `json:"time_deliver,omitempty"`
	TimeDone     *time.Time                `json:"time_done,omitempty"`
	UpdatedAt    time.Time                 `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "kitchen_orders" }

// SetItems replaces the ticket lines and rebuilds Detail from them.
func (o *Order) SetItems(items []Item) {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Line())
	}
	o.Items = items
	o.Detail = strings.Join(lines, "\n")
}

// Stamp records when the order first reached status.
func (o *Order) Stamp(status Status, at time.Time) {
	switch status {
	case orderdomain.StatusMaking:
		if o.TimeMaking == nil {
			o.TimeMaking = &at
		}
	case orderdomain.StatusDeliver:
		if o.TimeDeliver == nil {
			o.TimeDeliver = &at
		}
	case orderdomain.StatusDone:
		if o.TimeDone == nil {
			o.TimeDone = &at
		}
	}
}

// LastChange is the most recent stage timestamp.
func (o *Order) LastChange() time.Time {
	for _, t := range []*time.Time{o.TimeDone, o.TimeDeliver, o.TimeMaking} {
		if t != nil {
			return *t
		}
	}
	return o.TimeReceive
}
