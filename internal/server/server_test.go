package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStockService struct {
	result      *stockdomain.Result
	err         error
	rollbackErr error
	consumed    bool
}

func (f *fakeStockService) CheckAndConsume(ctx context.Context, req stockdomain.Request, consume bool) (*stockdomain.Result, error) {
	f.consumed = consume
	if f.err != nil {
		return nil, f.err
	}
	result := *f.result
	result.OrderID = req.OrderID
	return &result, nil
}

func (f *fakeStockService) Rollback(ctx context.Context, orderID string) (*stockdomain.RollbackResult, error) {
	if f.rollbackErr != nil {
		return nil, f.rollbackErr
	}
	return &stockdomain.RollbackResult{OrderID: orderID, RecordStatus: stockdomain.RecordRolledBack, RestoredIngredients: 2}, nil
}

func (f *fakeStockService) RollbackItems(ctx context.Context, orderID string, items []stockdomain.Item) (*stockdomain.RollbackResult, error) {
	return &stockdomain.RollbackResult{OrderID: orderID, RestoredIngredients: len(items)}, nil
}

func (f *fakeStockService) Consumption(ctx context.Context, orderID string) (*stockdomain.ConsumptionView, error) {
	return nil, stockdomain.ErrNotConsumed
}

type fakeKitchenService struct {
	open    bool
	update  kitchendomain.UpdateRequest
	syncErr error
}

func (f *fakeKitchenService) ReceiveOrder(ctx context.Context, req kitchendomain.ReceiveRequest) (*kitchendomain.ReceiveResult, error) {
	if !f.open {
		return nil, kitchendomain.ErrKitchenClosed
	}
	return &kitchendomain.ReceiveResult{OrderID: req.OrderID, QueueNumber: req.QueueNumber}, nil
}

func (f *fakeKitchenService) UpdateStatus(ctx context.Context, req kitchendomain.UpdateRequest) (*kitchendomain.UpdateResult, error) {
	f.update = req
	return &kitchendomain.UpdateResult{OrderID: req.OrderID, Status: req.Status, Applied: true}, nil
}

func (f *fakeKitchenService) ApplyItemCancelled(ctx context.Context, event kitchendomain.ItemCancelledEvent) (bool, error) {
	return true, nil
}

func (f *fakeKitchenService) Sync(ctx context.Context, orderID string) (*kitchendomain.SyncResult, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &kitchendomain.SyncResult{OrderID: orderID}, nil
}

func (f *fakeKitchenService) ListOrders(ctx context.Context) ([]kitchendomain.Order, error) {
	return nil, nil
}

func (f *fakeKitchenService) Duration(ctx context.Context, orderID string) (*kitchendomain.Durations, error) {
	return nil, kitchendomain.ErrNotFound
}

func (f *fakeKitchenService) IsOpen(ctx context.Context) (bool, error) {
	return f.open, nil
}

func (f *fakeKitchenService) SetOpen(ctx context.Context, open bool) (*kitchendomain.State, error) {
	f.open = open
	return kitchendomain.NewState(open, time.Now()), nil
}

type fakeRelay struct{}

func (fakeRelay) ProcessPending(ctx context.Context) (outboxdomain.RelayResult, error) {
	return outboxdomain.RelayResult{Claimed: 3, Delivered: 2, Retrying: 1}, nil
}

func (fakeRelay) Status(ctx context.Context) (outboxdomain.Status, error) {
	return outboxdomain.Status{Total: 4, Processed: 2, Failed: 1, Pending: 1}, nil
}

func newTestServer(t *testing.T, p ServerParams) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	p.Gin = engine
	p.Log = zap.NewNop()
	NewServer(p)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestStockShortageIsErrorEnvelope(t *testing.T) {
	stock := &fakeStockService{result: &stockdomain.Result{
		CanFulfill: false,
		Message:    "Not enough Vanilla Syrup",
		Shortages: []stockdomain.Shortage{{
			IngredientName: "Vanilla Syrup",
			Required:       decimal.NewFromInt(50),
			Available:      decimal.NewFromInt(30),
			Kind:           stockdomain.ShortageInsufficient,
		}},
	}}
	srv := newTestServer(t, ServerParams{StockSvc: stock})

	status, body := doJSON(t, http.MethodPost, srv.URL+"/stock/consume", map[string]any{
		"order_id": "ORD1",
		"items":    []map[string]any{{"menu_name": "Latte", "quantity": 2, "preference": "Vanilla"}},
	}, nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, codeInsufficientStock, body["code"])
	assert.True(t, stock.consumed)
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["can_fulfill"])
}

func TestStockBindingErrorIsBadRequest(t *testing.T) {
	srv := newTestServer(t, ServerParams{StockSvc: &fakeStockService{}})

	status, body := doJSON(t, http.MethodPost, srv.URL+"/stock/check_availability", map[string]any{
		"order_id": "  ",
		"items":    []any{},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, status)
	payload := body["error"].(map[string]any)
	assert.Equal(t, "validation_error", payload["type"])
}

// The stock HTTP client must read what the stock routes write.
func TestStockClientAgainstRoutes(t *testing.T) {
	stock := &fakeStockService{result: &stockdomain.Result{
		CanFulfill: false,
		Message:    "Not enough Vanilla Syrup",
		PartialSuggestions: []stockdomain.Suggestion{
			{MenuName: "Latte", Requested: 2, CanMake: 1},
		},
	}}
	srv := newTestServer(t, ServerParams{StockSvc: stock})
	client := upstream.NewHTTPStockClient(srv.URL, nil, zap.NewNop())
	ctx := context.Background()

	result, err := client.Check(ctx, stockdomain.Request{
		OrderID: "ORD1_check_Latte",
		Items:   []stockdomain.Item{{MenuName: "Latte", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.False(t, result.CanFulfill)
	require.Len(t, result.PartialSuggestions, 1)
	assert.Equal(t, 1, result.PartialSuggestions[0].CanMake)

	stock.err = &stockdomain.ValidationError{Err: stockdomain.ErrUnknownFlavor, Invalid: []string{"Mint"}, Options: []string{"Vanilla"}}
	_, err = client.Check(ctx, stockdomain.Request{OrderID: "ORD2", Items: []stockdomain.Item{{MenuName: "Latte", Quantity: 1}}})
	assert.ErrorIs(t, err, stockdomain.ErrUnknownFlavor)

	stock.rollbackErr = stockdomain.ErrNotConsumed
	_, err = client.Rollback(ctx, "ORD3")
	assert.ErrorIs(t, err, stockdomain.ErrNotConsumed)

	stock.rollbackErr = nil
	rolled, err := client.Rollback(ctx, "ORD3")
	require.NoError(t, err)
	assert.Equal(t, 2, rolled.RestoredIngredients)

	rolled, err = client.RollbackItems(ctx, "ORD3", []stockdomain.Item{{MenuName: "Latte", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, rolled.RestoredIngredients)
}

func TestKitchenClientAgainstRoutes(t *testing.T) {
	kitchen := &fakeKitchenService{open: true}
	srv := newTestServer(t, ServerParams{KitchenSvc: kitchen})
	client := upstream.NewHTTPKitchenClient(srv.URL, nil, zap.NewNop())

	open, err := client.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)

	kitchen.open = false
	open, err = client.IsOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, client.Sync(context.Background(), "ORD1"))
}

func TestKitchenUpdateStatusFromRelay(t *testing.T) {
	kitchen := &fakeKitchenService{open: true}
	srv := newTestServer(t, ServerParams{KitchenSvc: kitchen})

	status, body := doJSON(t, http.MethodPost,
		srv.URL+"/kitchen/update_status/ORD1?status=Cancelled&reason=wrong+room",
		map[string]any{"order_id": "ORD1"},
		map[string]string{outboxdomain.HeaderEventType: orderdomain.EventOrderCancelled},
	)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "ORD1", kitchen.update.OrderID)
	assert.Equal(t, orderdomain.StatusCancelled, kitchen.update.Status)
	assert.Equal(t, "wrong room", kitchen.update.Reason)
	assert.Equal(t, orderdomain.EventOrderCancelled, kitchen.update.EventType)
}

func TestKitchenUpdateStatusFromBody(t *testing.T) {
	kitchen := &fakeKitchenService{open: true}
	srv := newTestServer(t, ServerParams{KitchenSvc: kitchen})

	status, _ := doJSON(t, http.MethodPost, srv.URL+"/kitchen/update_status/ORD1",
		map[string]any{"status": "making"}, nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, orderdomain.StatusMaking, kitchen.update.Status)
	assert.Empty(t, kitchen.update.EventType)
}

func TestKitchenClosedIsErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, ServerParams{KitchenSvc: &fakeKitchenService{}})

	status, body := doJSON(t, http.MethodPost, srv.URL+"/receive_order", map[string]any{
		"order_id":     "ORD1",
		"queue_number": 1,
		"orders":       []map[string]any{{"menu_name": "Latte", "quantity": 1}},
	}, nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, kitchendomain.ErrKitchenClosed.Error(), body["code"])
	assert.Equal(t, "Kitchen closed", body["message"])
}

func TestSyncUnavailableIsServiceUnavailable(t *testing.T) {
	kitchen := &fakeKitchenService{syncErr: fmt.Errorf("%w: %w", kitchendomain.ErrOrderUnavailable, errors.New("dial tcp"))}
	srv := newTestServer(t, ServerParams{KitchenSvc: kitchen})

	status, body := doJSON(t, http.MethodPost, srv.URL+"/kitchen/sync_order_items/ORD1", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "service_unavailable", body["error"].(map[string]any)["type"])
}

func TestOutboxAdminRoutes(t *testing.T) {
	srv := newTestServer(t, ServerParams{Outbox: fakeRelay{}})

	status, body := doJSON(t, http.MethodGet, srv.URL+"/admin/outbox_status", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["total"])
	assert.EqualValues(t, 1, body["failed"])

	status, body = doJSON(t, http.MethodPost, srv.URL+"/admin/process_outbox", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["delivered"])
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv := newTestServer(t, ServerParams{})

	status, body := doJSON(t, http.MethodGet, srv.URL+"/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["error"].(map[string]any)["type"])
}

func TestBusinessEnvelope(t *testing.T) {
	t.Run("rejection keeps message and data", func(t *testing.T) {
		err := orderdomain.Reject(orderdomain.ErrUnknownMenu, "Menu Tea is not available.", gin.H{"available": []string{"Latte"}})
		env, ok := businessEnvelope(fmt.Errorf("create: %w", err))
		require.True(t, ok)
		assert.Equal(t, "unknown_menu", env.Code)
		assert.Equal(t, "Menu Tea is not available.", env.Message)
		assert.NotNil(t, env.Data)
	})

	t.Run("wrapped sentinel", func(t *testing.T) {
		env, ok := businessEnvelope(fmt.Errorf("%w: ORD9", orderdomain.ErrNotFound))
		require.True(t, ok)
		assert.Equal(t, "order_not_found", env.Code)
		assert.Equal(t, "Order not found: ORD9", env.Message)
	})

	t.Run("upstream failure is not business", func(t *testing.T) {
		err := fmt.Errorf("%w: %w", orderdomain.ErrStockUnavailable, &upstream.Error{Service: "inventory", Op: "check", StatusCode: 502})
		_, ok := businessEnvelope(err)
		assert.False(t, ok)
		status, payload := mapError(err)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Equal(t, "inventory service unavailable", payload.Message)
	})

	t.Run("unknown error is internal", func(t *testing.T) {
		_, ok := businessEnvelope(errors.New("boom"))
		assert.False(t, ok)
		status, _ := mapError(errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, status)
	})
}

type fakeOrderService struct {
	orderdomain.Service
	custom []orderdomain.CreateRequest
}

func (f *fakeOrderService) CreateCustom(ctx context.Context, req orderdomain.CreateRequest) (*orderdomain.CreateResult, error) {
	f.custom = append(f.custom, req)
	if req.Orders[0].Preference == "" {
		return nil, orderdomain.Reject(orderdomain.ErrFlavorRequired, "A flavor is still required for Caffe Latte on a custom order.", nil)
	}
	return &orderdomain.CreateResult{Message: "Order created with queue number 4.", OrderID: "ORD4", QueueNumber: 4}, nil
}

func TestCustomOrderRoute(t *testing.T) {
	orders := &fakeOrderService{}
	srv := newTestServer(t, ServerParams{OrderSvc: orders})

	body := map[string]any{
		"customer_name": "Dina",
		"room_name":     "Lobby",
		"orders":        []map[string]any{{"menu_name": "Caffe Latte", "quantity": 1, "preference": "Salted Caramel"}},
	}
	status, out := doJSON(t, http.MethodPost, srv.URL+"/custom_order", body, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", out["status"])
	data := out["data"].(map[string]any)
	assert.Equal(t, "ORD4", data["order_id"])
	require.Len(t, orders.custom, 1)
	assert.Equal(t, "Salted Caramel", orders.custom[0].Orders[0].Preference)

	body["orders"] = []map[string]any{{"menu_name": "Caffe Latte", "quantity": 1}}
	status, out = doJSON(t, http.MethodPost, srv.URL+"/custom_order", body, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, "flavor_required", out["code"])

	status, _ = doJSON(t, http.MethodPost, srv.URL+"/custom_order", map[string]any{"room_name": "Lobby"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Len(t, orders.custom, 2)
}
