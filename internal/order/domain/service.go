package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// CreateCustom is Create with free-form flavors.
	CreateCustom(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// CancelOrder cancels an order the kitchen has not started.
	CancelOrder(ctx context.Context, req CancelRequest) (*CancelResult, error)
	// CancelKitchen cancels any order that is not finished yet.
	CancelKitchen(ctx context.Context, req CancelRequest) (*CancelResult, error)
	CancelItem(ctx context.Context, req CancelItemRequest) (*CancelItemResult, error)
	// ApplyKitchenStatus applies a status pushed by the kitchen. applied is
	// false when the same update was already applied.
	ApplyKitchenStatus(ctx context.Context, req StatusUpdate) (applied bool, err error)

	Status(ctx context.Context, orderID string) (*StatusView, error)
	StatusByQueue(ctx context.Context, queueNumber int) (*StatusView, error)
	Today(ctx context.Context) (*TodayView, error)
	List(ctx context.Context) ([]Order, error)

	ListRooms(ctx context.Context) ([]Room, error)
	CreateRoom(ctx context.Context, name string) (*RoomResult, error)
	DeactivateRoom(ctx context.Context, id snowflake.ID) (*Room, error)

	// ReconcileStock retries post-commit consumption and compensation.
	ReconcileStock(ctx context.Context) (SweepResult, error)
	StockStatus(ctx context.Context) (StockStateCounts, error)
}

type ItemRequest struct {
	MenuName   string `json:"menu_name" binding:"required,notblank"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	Preference string `json:"preference"`
	Notes      string `json:"notes"`
}

func (i ItemRequest) StockItem() stockdomain.Item {
	return stockdomain.Item{MenuName: i.MenuName, Quantity: i.Quantity, Preference: i.Preference}
}

type CreateRequest struct {
	OrderID      string        `json:"order_id"`
	CustomerName string        `json:"customer_name" binding:"required,notblank"`
	RoomName     string        `json:"room_name" binding:"required,notblank"`
	Orders       []ItemRequest `json:"orders" binding:"required,min=1,dive"`
}

// Unavailable is an item rejected by the per-item stock check.
type Unavailable struct {
	Item               ItemRequest              `json:"item"`
	Reason             string                   `json:"reason"`
	Shortages          []stockdomain.Shortage   `json:"shortages"`
	PartialSuggestions []stockdomain.Suggestion `json:"partial_suggestions,omitempty"`
}

type CreateResult struct {
	Message         string        `json:"-"`
	OrderID         string        `json:"order_id"`
	QueueNumber     int           `json:"queue_number"`
	CustomerName    string        `json:"customer_name"`
	RoomName        string        `json:"room_name"`
	Status          Status        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	IsPartial       bool          `json:"is_partial"`
	StockState      StockState    `json:"stock_state"`
	TotalItems      int           `json:"total_items"`
	AvailableItems  int           `json:"available_items"`
	CancelledItems  int           `json:"cancelled_items"`
	Orders          []ItemView    `json:"orders"`
	CancelledOrders []ItemView    `json:"cancelled_orders"`
	Unavailable     []Unavailable `json:"unavailable_items,omitempty"`
}

type CancelRequest struct {
	OrderID string `json:"order_id" binding:"required,notblank"`
	Reason  string `json:"reason" binding:"required,notblank"`
}

type CancelResult struct {
	Message        string     `json:"-"`
	OrderID        string     `json:"order_id"`
	QueueNumber    int        `json:"queue_number"`
	CustomerName   string     `json:"customer_name"`
	RoomName       string     `json:"room_name"`
	Status         Status     `json:"status"`
	PreviousStatus Status     `json:"previous_status,omitempty"`
	CancelReason   string     `json:"cancel_reason"`
	CancelledBy    string     `json:"cancelled_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CancelledAt    time.Time  `json:"cancelled_at"`
	StockState     StockState `json:"stock_state"`
	Orders         []ItemView `json:"orders"`
}

// CancelItemRequest names the line by exactly one of ItemID or MenuName.
type CancelItemRequest struct {
	OrderID  string
	ItemID   snowflake.ID
	MenuName string
	Reason   string
}

type CancelItemResult struct {
	Message        string     `json:"-"`
	OrderID        string     `json:"order_id"`
	QueueNumber    int        `json:"queue_number"`
	CustomerName   string     `json:"customer_name"`
	RoomName       string     `json:"room_name"`
	OrderStatus    Status     `json:"order_status"`
	CancelledItem  ItemView   `json:"cancelled_item"`
	RemainingItems []ItemView `json:"remaining_items"`
	TotalRemaining int        `json:"total_remaining"`
}

type StatusUpdate struct {
	OrderID string `json:"-"`
	Status  Status `json:"status" binding:"required,notblank"`
	Reason  string `json:"reason"`
}

type ItemView struct {
	ItemID          snowflake.ID `json:"item_id"`
	MenuName        string       `json:"menu_name"`
	Quantity        int          `json:"quantity"`
	Preference      string       `json:"preference"`
	Notes           string       `json:"notes"`
	Status          ItemStatus   `json:"status"`
	CancelledReason *string      `json:"cancelled_reason,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
}

func NewItemView(item Item) ItemView {
	return ItemView{
		ItemID:          item.ID,
		MenuName:        item.MenuName,
		Quantity:        item.Quantity,
		Preference:      item.Preference,
		Notes:           item.Notes,
		Status:          item.Status,
		CancelledReason: item.CancelledReason,
		CancelledAt:     item.CancelledAt,
	}
}

func NewItemViews(items []Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		out = append(out, NewItemView(item))
	}
	return out
}

// StatusView lists active lines under Orders. TimeCancelled is set for
// aborted orders.
type StatusView struct {
	OrderID         string     `json:"order_id"`
	QueueNumber     int        `json:"queue_number"`
	CustomerName    string     `json:"customer_name"`
	RoomName        string     `json:"room_name"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CancelReason    *string    `json:"cancel_reason"`
	IsPartial       bool       `json:"is_partial"`
	StockState      StockState `json:"stock_state"`
	TotalItems      int        `json:"total_items"`
	ActiveItems     int        `json:"active_items"`
	CancelledItems  int        `json:"cancelled_items"`
	Orders          []ItemView `json:"orders"`
	CancelledOrders []ItemView `json:"cancelled_orders"`
	TimeCancelled   *time.Time `json:"time_cancelled"`
}

type TodayView struct {
	Date        string  `json:"date"`
	Orders      []Order `json:"orders"`
	TotalOrders int     `json:"total_orders"`
}

type RoomResult struct {
	Room        Room `json:"room"`
	Reactivated bool `json:"reactivated"`
}

type SweepResult struct {
	Consumed    int `json:"consumed"`
	Compensated int `json:"compensated"`
	Released    int `json:"released"`
	Failed      int `json:"failed"`
	Retrying    int `json:"retrying"`
}

type StockStateCounts struct {
	Pending         int64 `json:"pending"`
	Consumed        int64 `json:"consumed"`
	Failed          int64 `json:"failed"`
	RollbackPending int64 `json:"rollback_pending"`
	Compensated     int64 `json:"compensated"`
	Total           int64 `json:"total"`
}

const (
	EventOrderCreated       = "order_created"
	EventOrderCancelled     = "order_cancelled"
	EventOrderItemCancelled = "order_item_cancelled"
	// EventOrderStatusChanged is consumed, not published, by this service.
	EventOrderStatusChanged = "order_status_changed"
)

const CancelledByKitchen = "kitchen"

var (
	ErrInvalidOrderID     = errors.New("invalid_order_id")
	ErrInvalidCustomer    = errors.New("invalid_customer_name")
	ErrInvalidRoom        = errors.New("invalid_room")
	ErrEmptyItems         = errors.New("empty_items")
	ErrInvalidItem        = errors.New("invalid_item")
	ErrUnknownMenu        = errors.New("unknown_menu")
	ErrFlavorRequired     = errors.New("flavor_required")
	ErrInvalidFlavor      = errors.New("invalid_flavor")
	ErrFlavorNotOffered   = errors.New("flavor_not_offered")
	ErrKitchenClosed      = errors.New("kitchen_closed")
	ErrDuplicateOrder     = errors.New("duplicate_order")
	ErrOutOfStock         = errors.New("out_of_stock")
	ErrNotFound           = errors.New("order_not_found")
	ErrNotCancellable     = errors.New("order_not_cancellable")
	ErrAlreadyCancelled   = errors.New("order_already_cancelled")
	ErrOrderClosed        = errors.New("order_closed")
	ErrReasonRequired     = errors.New("reason_required")
	ErrItemSelector       = errors.New("invalid_item_selector")
	ErrItemNotFound       = errors.New("order_item_not_found")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrRoomExists         = errors.New("room_exists")
	ErrRoomNotFound       = errors.New("room_not_found")
	ErrRoomInactive       = errors.New("room_inactive")
	ErrInvalidRoomName    = errors.New("invalid_room_name")
	ErrMenuUnavailable    = errors.New("menu_unavailable")
	ErrKitchenUnavailable = errors.New("kitchen_unavailable")
	ErrStockUnavailable   = errors.New("stock_unavailable")
)

// Rejection is a business refusal with a customer-facing message and
// optional detail. It unwraps to one of the sentinel errors above.
type Rejection struct {
	Err     error
	Message string
	Data    any
}

func (r *Rejection) Error() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Err.Error()
}

func (r *Rejection) Unwrap() error { return r.Err }

func Reject(err error, message string, data any) error {
	return &Rejection{Err: err, Message: message, Data: data}
}
