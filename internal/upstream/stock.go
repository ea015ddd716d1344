package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/smallbiznis/pantry/internal/config"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"go.uber.org/zap"
)

const (
	stockCheckTimeout    = 10 * time.Second
	stockConsumeTimeout  = 7 * time.Second
	stockRollbackTimeout = 7 * time.Second
)

// StockClient calls the inventory service's stock endpoints.
type StockClient interface {
	Check(ctx context.Context, req stockdomain.Request) (*stockdomain.Result, error)
	Consume(ctx context.Context, req stockdomain.Request) (*stockdomain.Result, error)
	Rollback(ctx context.Context, orderID string) (*stockdomain.RollbackResult, error)
	RollbackItems(ctx context.Context, orderID string, items []stockdomain.Item) (*stockdomain.RollbackResult, error)
}

type stockClient struct {
	t transport
}

func NewStockClient(cfg config.Config, log *zap.Logger) StockClient {
	return NewHTTPStockClient(cfg.Services.Inventory, nil, log)
}

func NewHTTPStockClient(baseURL string, client *http.Client, log *zap.Logger) StockClient {
	return &stockClient{t: newTransport("inventory", baseURL, client, log)}
}

func (c *stockClient) Check(ctx context.Context, req stockdomain.Request) (*stockdomain.Result, error) {
	return c.evaluate(ctx, "check", stockCheckTimeout, "/stock/check_availability", req)
}

func (c *stockClient) Consume(ctx context.Context, req stockdomain.Request) (*stockdomain.Result, error) {
	return c.evaluate(ctx, "consume", stockConsumeTimeout, "/stock/consume", req)
}

// evaluate returns shortage rejections as a result, not an error; only
// validation failures and transport errors are errors.
func (c *stockClient) evaluate(ctx context.Context, op string, timeout time.Duration, path string, req stockdomain.Request) (*stockdomain.Result, error) {
	env, err := c.t.envelope(ctx, op, timeout, http.MethodPost, path, req)
	var rejected *Rejected
	switch {
	case errors.As(err, &rejected):
		if result, ok := decodeResult(rejected.Data); ok {
			if result.Message == "" {
				result.Message = rejected.Message
			}
			return result, nil
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	result, ok := decodeResult(env.Data)
	if !ok {
		return nil, &Error{Service: c.t.service, Op: op, Err: errors.New("missing stock result")}
	}
	return result, nil
}

func (c *stockClient) Rollback(ctx context.Context, orderID string) (*stockdomain.RollbackResult, error) {
	path := "/stock/rollback/" + url.PathEscape(orderID)
	return c.rollback(ctx, "rollback", path, nil)
}

func (c *stockClient) RollbackItems(ctx context.Context, orderID string, items []stockdomain.Item) (*stockdomain.RollbackResult, error) {
	path := "/stock/rollback/" + url.PathEscape(orderID) + "/items"
	return c.rollback(ctx, "rollback_items", path, map[string]any{"items": items})
}

func (c *stockClient) rollback(ctx context.Context, op, path string, body any) (*stockdomain.RollbackResult, error) {
	env, err := c.t.envelope(ctx, op, stockRollbackTimeout, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	var result stockdomain.RollbackResult
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &result); err != nil {
			return nil, &Error{Service: c.t.service, Op: op, Err: err}
		}
	}
	return &result, nil
}

func decodeResult(raw json.RawMessage) (*stockdomain.Result, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["can_fulfill"]; !ok {
		return nil, false
	}
	var result stockdomain.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}
