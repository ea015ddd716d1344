package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockCheckReturnsShortagesAsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock/check_availability", r.URL.Path)
		var req stockdomain.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ORD1_check_Caffe Latte", req.OrderID)
		_, _ = w.Write([]byte(`{"status":"error","message":"Insufficient stock","code":"insufficient_stock","data":{
			"order_id":"ORD1_check_Caffe Latte","can_fulfill":false,
			"shortages":[{"ingredient_id":30,"ingredient_name":"Vanilla Syrup","required":50,"available":30,"unit":"milliliter","menus":["Caffe Latte (Vanilla)"],"status":"insufficient"}],
			"partial_suggestions":[{"menu_name":"Caffe Latte","preference":"Vanilla","requested":2,"can_make":1}]
		}}`))
	}))
	defer server.Close()

	client := NewHTTPStockClient(server.URL, nil, nil)
	result, err := client.Check(context.Background(), stockdomain.Request{
		OrderID: "ORD1_check_Caffe Latte",
		Items:   []stockdomain.Item{{MenuName: "Caffe Latte", Quantity: 2, Preference: "Vanilla"}},
	})
	require.NoError(t, err)
	assert.False(t, result.CanFulfill)
	assert.Equal(t, "Insufficient stock", result.Message)
	require.Len(t, result.Shortages, 1)
	assert.Equal(t, "50", result.Shortages[0].Required.String())
	assert.Equal(t, 1, result.PartialSuggestions[0].CanMake)
}

func TestStockValidationErrorMatchesSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"unknown_flavor: Mint (valid: Vanilla)","code":"unknown_flavor","data":null}`))
	}))
	defer server.Close()

	_, err := NewHTTPStockClient(server.URL, nil, nil).Consume(context.Background(), stockdomain.Request{OrderID: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, stockdomain.ErrUnknownFlavor)
	assert.Equal(t, "unknown_flavor: Mint (valid: Vanilla)", err.Error())
}

func TestStockRollbackItems(t *testing.T) {
	var body map[string][]stockdomain.Item
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock/rollback/ORD1/items", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte(`{"status":"success","message":"ok","data":{"order_id":"ORD1","record_status":"consumed","restored_ingredients":2}}`))
	}))
	defer server.Close()

	result, err := NewHTTPStockClient(server.URL, nil, nil).RollbackItems(context.Background(), "ORD1",
		[]stockdomain.Item{{MenuName: "Tea", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RestoredIngredients)
	assert.Equal(t, stockdomain.RecordStatus("consumed"), result.RecordStatus)
	assert.Equal(t, "Tea", body["items"][0].MenuName)
}

func TestStockRollbackNotConsumed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"no consumption","code":"consumption_not_found"}`))
	}))
	defer server.Close()

	_, err := NewHTTPStockClient(server.URL, nil, nil).Rollback(context.Background(), "ORD1")
	assert.ErrorIs(t, err, stockdomain.ErrNotConsumed)
}

func TestServerErrorIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPStockClient(server.URL, nil, nil).Rollback(context.Background(), "ORD1")
	var upstreamErr *Error
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, http.StatusBadGateway, upstreamErr.StatusCode)
	assert.Equal(t, "inventory", upstreamErr.Upstream())
}

func TestKitchenIsOpen(t *testing.T) {
	open := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kitchen/status/now":
			_ = json.NewEncoder(w).Encode(map[string]bool{"is_open": open})
		case "/kitchen/sync_order_items/ORD1":
			assert.Equal(t, http.MethodPost, r.Method)
			_, _ = w.Write([]byte(`{"status":"success"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewHTTPKitchenClient(server.URL, nil, nil)
	got, err := client.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, got)

	open = false
	got, err = client.IsOpen(context.Background())
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, client.Sync(context.Background(), "ORD1"))
	assert.Error(t, client.Sync(context.Background(), "ORD2"))
}

func TestKitchenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewHTTPKitchenClient(url, nil, nil).IsOpen(context.Background())
	var upstreamErr *Error
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, "kitchen", upstreamErr.Service)
}

func TestOrderSnapshotFallbacks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/order_status/ORD1" {
			_, _ = w.Write([]byte(`{"status":"error","message":"Order not found","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{
			"order_id":"ORD1","queue_number":"7","status":"making","cancel_reason":null,
			"orders":[{"item_id":1,"menu_name":"Caffe Latte","quantity":2,"preference":"Vanilla","notes":"less ice"}],
			"cancelled_orders":[{"item_id":2,"name":"Tea","cancelled_reason":"out of tea"}]
		}}`))
	}))
	defer server.Close()

	client := NewHTTPOrderClient(server.URL, nil, nil)
	snap, err := client.Snapshot(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, "making", snap.Status)
	assert.Equal(t, 7, snap.QueueNumber)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "less ice", snap.Items[0].Notes)
	require.Len(t, snap.Cancelled, 1)
	assert.Equal(t, "Tea", snap.Cancelled[0].MenuName)
	assert.Equal(t, 1, snap.Cancelled[0].Quantity)
	assert.Equal(t, "out of tea", snap.Cancelled[0].CancelReason)

	_, err = client.Snapshot(context.Background(), "ORD2")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
