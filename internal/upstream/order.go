package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
	"go.uber.org/zap"
)

const orderStatusTimeout = 5 * time.Second

var ErrOrderNotFound = errors.New("order_not_found")

// OrderSnapshot is the order service's current view of one order.
type OrderSnapshot struct {
	OrderID      string
	QueueNumber  int
	Status       string
	CancelReason string
	Items        []SnapshotItem
	Cancelled    []SnapshotItem
}

type SnapshotItem struct {
	ItemID       int64  `json:"item_id,omitempty"`
	MenuName     string `json:"menu_name"`
	Quantity     int    `json:"quantity"`
	Preference   string `json:"preference,omitempty"`
	Notes        string `json:"notes,omitempty"`
	CancelReason string `json:"-"`
}

// OrderClient reads order state for kitchen reconciliation.
type OrderClient interface {
	Snapshot(ctx context.Context, orderID string) (*OrderSnapshot, error)
}

type orderClient struct {
	t transport
}

func NewOrderClient(cfg config.Config, log *zap.Logger) OrderClient {
	return NewHTTPOrderClient(cfg.Services.Order, nil, log)
}

func NewHTTPOrderClient(baseURL string, client *http.Client, log *zap.Logger) OrderClient {
	return &orderClient{t: newTransport("order", baseURL, client, log)}
}

func (c *orderClient) Snapshot(ctx context.Context, orderID string) (*OrderSnapshot, error) {
	path := "/order_status/" + url.PathEscape(orderID)
	raw, err := c.t.do(ctx, "status", orderStatusTimeout, http.MethodGet, path, nil)
	if err != nil {
		var upstreamErr *Error
		if errors.As(err, &upstreamErr) && upstreamErr.StatusCode == http.StatusNotFound {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	root, err := jsonfield.Parse(raw)
	if err != nil {
		return nil, &Error{Service: c.t.service, Op: "status", Err: err}
	}
	// An error envelope carries no order; no order status is spelled "error".
	if root.String("status") == "error" {
		return nil, ErrOrderNotFound
	}
	data := root.Unwrap("data")
	if !data.Has("order_id") {
		return nil, ErrOrderNotFound
	}

	snap := &OrderSnapshot{
		OrderID:      data.StringOr(orderID, "order_id"),
		Status:       data.String("status"),
		CancelReason: data.String("cancel_reason"),
	}
	snap.QueueNumber, _ = data.Int("queue_number")
	active, _ := data.Objects("items", "orders")
	for _, item := range active {
		snap.Items = append(snap.Items, snapshotItem(item))
	}
	cancelled, _ := data.Objects("cancelled_orders", "cancelled_items")
	for _, item := range cancelled {
		snap.Cancelled = append(snap.Cancelled, snapshotItem(item))
	}
	return snap, nil
}

func snapshotItem(o jsonfield.Object) SnapshotItem {
	qty, ok := o.Int("quantity", "qty")
	if !ok || qty < 1 {
		qty = 1
	}
	id, _ := o.Int("item_id", "id")
	return SnapshotItem{
		ItemID:       int64(id),
		MenuName:     o.String("menu_name", "name", "menu"),
		Quantity:     qty,
		Preference:   o.String("preference"),
		Notes:        o.String("notes"),
		CancelReason: o.String("cancel_reason", "cancelled_reason", "reason"),
	}
}
