package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
	"go.uber.org/zap"
)

const (
	kitchenStatusTimeout = 3 * time.Second
	kitchenSyncTimeout   = 5 * time.Second
)

// KitchenClient calls the kitchen service on behalf of order intake.
type KitchenClient interface {
	IsOpen(ctx context.Context) (bool, error)
	// Sync asks the kitchen to pull the current state of an order.
	Sync(ctx context.Context, orderID string) error
}

type kitchenClient struct {
	t transport
}

func NewKitchenClient(cfg config.Config, log *zap.Logger) KitchenClient {
	return NewHTTPKitchenClient(cfg.Services.Kitchen, nil, log)
}

func NewHTTPKitchenClient(baseURL string, client *http.Client, log *zap.Logger) KitchenClient {
	return &kitchenClient{t: newTransport("kitchen", baseURL, client, log)}
}

func (c *kitchenClient) IsOpen(ctx context.Context) (bool, error) {
	raw, err := c.t.do(ctx, "status", kitchenStatusTimeout, http.MethodGet, "/kitchen/status/now", nil)
	if err != nil {
		return false, err
	}
	root, err := jsonfield.Parse(raw)
	if err != nil {
		return false, &Error{Service: c.t.service, Op: "status", Err: err}
	}
	open, _ := root.Unwrap("data").Bool("is_open")
	return open, nil
}

func (c *kitchenClient) Sync(ctx context.Context, orderID string) error {
	path := "/kitchen/sync_order_items/" + url.PathEscape(orderID)
	_, err := c.t.do(ctx, "sync", kitchenSyncTimeout, http.MethodPost, path, nil)
	return err
}
