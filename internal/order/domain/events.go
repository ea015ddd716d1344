package domain

import "time"

// PayloadItem is an order line as carried in outbox payloads.
type PayloadItem struct {
	ItemID     int64  `json:"item_id"`
	MenuName   string `json:"menu_name"`
	Quantity   int    `json:"quantity"`
	Preference string `json:"preference"`
	Notes      string `json:"notes,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func NewPayloadItem(item Item) PayloadItem {
	return PayloadItem{
		ItemID:     int64(item.ID),
		MenuName:   item.MenuName,
		Quantity:   item.Quantity,
		Preference: item.Preference,
		Notes:      item.Notes,
	}
}

func NewPayloadItems(items []Item) []PayloadItem {
	out := make([]PayloadItem, 0, len(items))
	for _, item := range items {
		out = append(out, NewPayloadItem(item))
	}
	return out
}

type OrderCreatedPayload struct {
	OrderID        string        `json:"order_id"`
	QueueNumber    int           `json:"queue_number"`
	Orders         []PayloadItem `json:"orders"`
	CustomerName   string        `json:"customer_name"`
	RoomName       string        `json:"room_name"`
	IsPartial      bool          `json:"is_partial"`
	CancelledItems []PayloadItem `json:"cancelled_items"`
}

type OrderCancelledPayload struct {
	OrderID        string    `json:"order_id"`
	Reason         string    `json:"reason"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	CancelledBy    string    `json:"cancelled_by,omitempty"`
	CancelledAt    time.Time `json:"cancelled_at"`
}

type OrderItemCancelledPayload struct {
	OrderID        string        `json:"order_id"`
	Type           string        `json:"type"`
	CancelledItem  PayloadItem   `json:"cancelled_item"`
	RemainingItems []PayloadItem `json:"remaining_items"`
	CancelledAt    time.Time     `json:"cancelled_at"`
	OrderStatus    Status        `json:"order_status"`
}
