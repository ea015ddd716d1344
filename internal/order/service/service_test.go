package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/internal/idempotency"
	"github.com/smallbiznis/pantry/internal/menu"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	orderrepository "github.com/smallbiznis/pantry/internal/order/repository"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	outboxrepository "github.com/smallbiznis/pantry/internal/outbox/repository"
	outboxservice "github.com/smallbiznis/pantry/internal/outbox/service"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
	"github.com/smallbiznis/pantry/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeMenu struct {
	names   []string
	flavors map[string][]string
	err     error
}

func (f *fakeMenu) Recipes(context.Context, []string) (map[string][]menu.RecipeLine, error) {
	return nil, nil
}

func (f *fakeMenu) MenuNames(context.Context) ([]string, error) {
	return f.names, f.err
}

func (f *fakeMenu) Flavors(_ context.Context, name string) ([]string, error) {
	flavors, ok := f.flavors[name]
	if !ok {
		return nil, menu.ErrMenuNotFound
	}
	return flavors, nil
}

type fakeKitchen struct {
	mu     sync.Mutex
	open   bool
	err    error
	synced []string
}

func (f *fakeKitchen) IsOpen(context.Context) (bool, error) {
	return f.open, f.err
}

func (f *fakeKitchen) Sync(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, orderID)
	return nil
}

type fakeStock struct {
	mu          sync.Mutex
	short       map[string]bool
	reject      map[string]error
	checkErr    error
	consumeErr  error
	rollbackErr error
	itemErr     error

	consumed      [][]stockdomain.Item
	rolledBack    []string
	itemRollbacks []stockdomain.Item

	// beforeConsume runs while the consume request is in flight.
	beforeConsume func()
}

func (f *fakeStock) Check(_ context.Context, req stockdomain.Request) (*stockdomain.Result, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	name := req.Items[0].MenuName
	if err := f.reject[name]; err != nil {
		return nil, err
	}
	if f.short[name] {
		return &stockdomain.Result{
			OrderID: req.OrderID,
			Message: "Insufficient stock",
			Shortages: []stockdomain.Shortage{{
				IngredientName: "Tea Leaves",
				Menus:          []string{name},
				Kind:           stockdomain.ShortageOutOfStock,
			}},
		}, nil
	}
	return &stockdomain.Result{OrderID: req.OrderID, CanFulfill: true}, nil
}

func (f *fakeStock) Consume(_ context.Context, req stockdomain.Request) (*stockdomain.Result, error) {
	if hook := f.beforeConsume; hook != nil {
		f.beforeConsume = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.consumed = append(f.consumed, req.Items)
	return &stockdomain.Result{OrderID: req.OrderID, CanFulfill: true, Consumed: true}, nil
}

func (f *fakeStock) Rollback(_ context.Context, orderID string) (*stockdomain.RollbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rollbackErr != nil {
		return nil, f.rollbackErr
	}
	f.rolledBack = append(f.rolledBack, orderID)
	return &stockdomain.RollbackResult{OrderID: orderID, RecordStatus: stockdomain.RecordRolledBack}, nil
}

func (f *fakeStock) RollbackItems(_ context.Context, orderID string, items []stockdomain.Item) (*stockdomain.RollbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	f.itemRollbacks = append(f.itemRollbacks, items...)
	return &stockdomain.RollbackResult{OrderID: orderID}, nil
}

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	clk     *clock.FakeClock
	menu    *fakeMenu
	kitchen *fakeKitchen
	stock   *fakeStock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&orderdomain.Room{},
		&orderdomain.Order{},
		&orderdomain.Item{},
		&outboxdomain.Event{},
		&idempotency.Key{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	// 10:00 in Asia/Jakarta
	clk := clock.NewFakeClock(time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC))

	now := clk.Now()
	require.NoError(t, conn.Create(&[]orderdomain.Room{
		{ID: 1, Name: "Meeting Room A", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: 2, Name: "Lobby", IsActive: true, CreatedAt: now, UpdatedAt: now},
	}).Error)

	f := &fixture{
		conn: conn,
		clk:  clk,
		menu: &fakeMenu{
			names: []string{"Caffe Latte", "Tea", "Croissant"},
			flavors: map[string][]string{
				"Caffe Latte": {"Vanilla", "Hazelnut"},
				"Tea":         {},
			},
		},
		kitchen: &fakeKitchen{open: true},
		stock:   &fakeStock{short: map[string]bool{}, reject: map[string]error{}},
	}
	cfg := config.Config{
		FlavorRequiredMenus: []string{"Caffe Latte"},
		Stock: config.StockConfig{
			SweepInterval: 15 * time.Second,
			SweepGrace:    10 * time.Second,
			MaxAttempts:   3,
		},
	}
	f.svc = New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		Repo:      orderrepository.Provide(),
		Menu:      f.menu,
		Kitchen:   f.kitchen,
		Stock:     f.stock,
		Ledger:    idempotency.New(conn, zap.NewNop(), clk),
		Publisher: outboxservice.NewPublisher(outboxrepository.Provide(), clk, outboxservice.Config{}),
	})
	return f
}

func (f *fixture) load(t *testing.T, orderID string) *orderdomain.Order {
	t.Helper()
	var order orderdomain.Order
	require.NoError(t, f.conn.Preload("Items").First(&order, "order_id = ?", orderID).Error)
	return &order
}

func (f *fixture) events(t *testing.T, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&outboxdomain.Event{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func latteTea() orderdomain.CreateRequest {
	return orderdomain.CreateRequest{
		CustomerName: "Dina",
		RoomName:     "Meeting Room A",
		Orders: []orderdomain.ItemRequest{
			{MenuName: "Caffe Latte", Quantity: 1, Preference: "Vanilla"},
			{MenuName: "Tea", Quantity: 2, Notes: "less sugar"},
		},
	}
}

func rejection(t *testing.T, err error) *orderdomain.Rejection {
	t.Helper()
	var rej *orderdomain.Rejection
	require.True(t, errors.As(err, &rej), "expected rejection, got %v", err)
	return rej
}

func TestCreateFullOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	assert.Equal(t, 1, res.QueueNumber)
	assert.Equal(t, orderdomain.StatusReceive, res.Status)
	assert.False(t, res.IsPartial)
	assert.Equal(t, orderdomain.StockConsumed, res.StockState)
	assert.Len(t, res.Orders, 2)
	assert.Equal(t, "Order created with queue number 1. All menus are available and being prepared.", res.Message)

	stored := f.load(t, res.OrderID)
	assert.Equal(t, "2024-05-02", stored.QueueDate)
	assert.Equal(t, orderdomain.StockConsumed, stored.StockState)
	require.Len(t, f.stock.consumed, 1)
	assert.Len(t, f.stock.consumed[0], 2)
	assert.EqualValues(t, 1, f.events(t, orderdomain.EventOrderCreated))
}

func TestCreatePartialOrderCancelsShortItems(t *testing.T) {
	f := newFixture(t)
	f.stock.short["Tea"] = true

	res, err := f.svc.Create(context.Background(), latteTea())
	require.NoError(t, err)

	assert.True(t, res.IsPartial)
	assert.Equal(t, 1, res.AvailableItems)
	assert.Equal(t, 1, res.CancelledItems)
	require.Len(t, res.CancelledOrders, 1)
	assert.Equal(t, "Tea", res.CancelledOrders[0].MenuName)
	require.NotNil(t, res.CancelledOrders[0].CancelledReason)
	assert.Equal(t, "Insufficient stock for Tea", *res.CancelledOrders[0].CancelledReason)
	assert.Contains(t, res.Message, "Cancelled: Tea")
	assert.Contains(t, res.Message, "1. Tea x2 - Insufficient stock for Tea")

	require.Len(t, f.stock.consumed, 1)
	require.Len(t, f.stock.consumed[0], 1)
	assert.Equal(t, "Caffe Latte", f.stock.consumed[0][0].MenuName)

	stored := f.load(t, res.OrderID)
	for _, item := range stored.Items {
		assert.True(t, item.StockReleased)
	}
}

func TestCustomOrderAcceptsUnlistedFlavor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := orderdomain.CreateRequest{
		CustomerName: "Dina",
		RoomName:     "Lobby",
		Orders: []orderdomain.ItemRequest{
			{MenuName: "Caffe Latte", Quantity: 1, Preference: "Salted Caramel"},
			{MenuName: "Tea", Quantity: 1, Preference: "Lemon"},
		},
	}

	_, err := f.svc.Create(ctx, req)
	require.ErrorIs(t, err, orderdomain.ErrInvalidFlavor)

	res, err := f.svc.CreateCustom(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsPartial)
	assert.Equal(t, orderdomain.StockConsumed, res.StockState)
	require.Len(t, f.stock.consumed, 1)
	assert.Equal(t, "Salted Caramel", f.stock.consumed[0][0].Preference)
	assert.Equal(t, "Lemon", f.stock.consumed[0][1].Preference)
	assert.EqualValues(t, 1, f.events(t, orderdomain.EventOrderCreated))
}

func TestCustomOrderStillRequiresFlavor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCustom(context.Background(), orderdomain.CreateRequest{
		CustomerName: "Dina",
		RoomName:     "Lobby",
		Orders:       []orderdomain.ItemRequest{{MenuName: "Caffe Latte", Quantity: 1}},
	})
	require.ErrorIs(t, err, orderdomain.ErrFlavorRequired)
	rej := rejection(t, err)
	assert.Contains(t, rej.Message, "1. Vanilla\n2. Hazelnut")
	assert.Contains(t, rej.Message, "Any flavor may be used")
	assert.Empty(t, f.stock.consumed)
}

func TestCustomOrderCancelsFlavorInventoryCannotMake(t *testing.T) {
	f := newFixture(t)
	f.stock.reject["Caffe Latte"] = &upstream.Rejected{Service: "inventory", Code: "unknown_flavor", Message: "unknown_flavor: Durian (valid: Vanilla, Hazelnut)"}

	res, err := f.svc.CreateCustom(context.Background(), orderdomain.CreateRequest{
		CustomerName: "Dina",
		RoomName:     "Lobby",
		Orders: []orderdomain.ItemRequest{
			{MenuName: "Caffe Latte", Quantity: 1, Preference: "Durian"},
			{MenuName: "Tea", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.IsPartial)
	require.Len(t, res.CancelledOrders, 1)
	assert.Equal(t, "Caffe Latte", res.CancelledOrders[0].MenuName)
	require.Len(t, f.stock.consumed, 1)
	require.Len(t, f.stock.consumed[0], 1)
	assert.Equal(t, "Tea", f.stock.consumed[0][0].MenuName)
}

func TestCreateRejectsWhenNothingIsAvailable(t *testing.T) {
	f := newFixture(t)
	f.stock.short["Tea"] = true
	f.stock.reject["Caffe Latte"] = &upstream.Rejected{Service: "inventory", Code: "unknown_flavor", Message: "Unknown flavor: Vanilla"}

	_, err := f.svc.Create(context.Background(), latteTea())
	require.ErrorIs(t, err, orderdomain.ErrOutOfStock)
	rej := rejection(t, err)
	assert.Contains(t, rej.Message, "None of the ordered menus are available:")
	assert.Contains(t, rej.Message, "1. Caffe Latte x1 - Unknown flavor: Vanilla")

	var n int64
	require.NoError(t, f.conn.Model(&orderdomain.Order{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Zero(t, f.events(t, orderdomain.EventOrderCreated))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unknown room lists active rooms", func(t *testing.T) {
		req := latteTea()
		req.RoomName = "Attic"
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrInvalidRoom)
		rej := rejection(t, err)
		assert.Contains(t, rej.Message, "1. Lobby\n2. Meeting Room A")
	})

	t.Run("unknown menu", func(t *testing.T) {
		req := latteTea()
		req.Orders = append(req.Orders, orderdomain.ItemRequest{MenuName: "Pizza", Quantity: 1})
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrUnknownMenu)
		assert.Contains(t, rejection(t, err).Message, "Pizza")
	})

	t.Run("missing required flavor", func(t *testing.T) {
		req := latteTea()
		req.Orders[0].Preference = ""
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrFlavorRequired)
		assert.Contains(t, rejection(t, err).Message, "1. Vanilla\n2. Hazelnut")
	})

	t.Run("flavor not offered", func(t *testing.T) {
		req := latteTea()
		req.Orders[0].Preference = "Caramel"
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrInvalidFlavor)
	})

	t.Run("flavor on plain menu", func(t *testing.T) {
		req := latteTea()
		req.Orders[1].Preference = "Lemon"
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrFlavorNotOffered)
	})

	t.Run("bad quantity", func(t *testing.T) {
		req := latteTea()
		req.Orders[1].Quantity = 0
		_, err := f.svc.Create(ctx, req)
		require.ErrorIs(t, err, orderdomain.ErrInvalidItem)
	})

	var n int64
	require.NoError(t, f.conn.Model(&orderdomain.Order{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreateMatchesFlavorIgnoringCase(t *testing.T) {
	f := newFixture(t)
	req := latteTea()
	req.Orders[0].Preference = "vanilla"

	_, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
}

func TestCreateKitchenState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.kitchen.open = false
	_, err := f.svc.Create(ctx, latteTea())
	require.ErrorIs(t, err, orderdomain.ErrKitchenClosed)

	f.kitchen.err = &upstream.Error{Service: "kitchen", Op: "status", Err: errors.New("connection refused")}
	_, err = f.svc.Create(ctx, latteTea())
	require.ErrorIs(t, err, orderdomain.ErrKitchenUnavailable)
	var upErr *upstream.Error
	assert.True(t, errors.As(err, &upErr))
}

func TestCreateStockUnreachableRejectsOrder(t *testing.T) {
	f := newFixture(t)
	f.stock.checkErr = &upstream.Error{Service: "inventory", Op: "check", StatusCode: 502}

	_, err := f.svc.Create(context.Background(), latteTea())
	require.ErrorIs(t, err, orderdomain.ErrStockUnavailable)
}

func TestCreateDuplicateOrderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := latteTea()
	req.OrderID = "ORD-FIXED"

	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, orderdomain.ErrDuplicateOrder)
}

func TestQueueNumberRestartsEachJakartaDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 23:59 in Jakarta
	f.clk.Advance(13*time.Hour + 59*time.Minute)
	first, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	f.clk.Advance(2 * time.Minute)
	third, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	assert.Equal(t, 1, first.QueueNumber)
	assert.Equal(t, 2, second.QueueNumber)
	assert.Equal(t, 1, third.QueueNumber)
	assert.Equal(t, "2024-05-03", f.load(t, third.OrderID).QueueDate)

	today, err := f.svc.Today(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-03", today.Date)
	assert.Equal(t, 1, today.TotalOrders)

	view, err := f.svc.StatusByQueue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, third.OrderID, view.OrderID)
}

func TestCancelOrderOnlyWhileReceived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	res, err := f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCancelled, res.Status)
	assert.Equal(t, orderdomain.StockCompensated, res.StockState)
	assert.Equal(t, "The order for Caffe Latte and Tea has been cancelled.", res.Message)
	assert.Equal(t, []string{created.OrderID}, f.stock.rolledBack)
	assert.Equal(t, []string{created.OrderID}, f.kitchen.synced)
	assert.EqualValues(t, 1, f.events(t, orderdomain.EventOrderCancelled))

	stored := f.load(t, created.OrderID)
	assert.Equal(t, orderdomain.StockCompensated, stored.StockState)
	for _, item := range stored.Items {
		assert.Equal(t, orderdomain.ItemCancelled, item.Status)
	}

	_, err = f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "again"})
	require.ErrorIs(t, err, orderdomain.ErrAlreadyCancelled)

	_, err = f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: "missing", Reason: "x"})
	require.ErrorIs(t, err, orderdomain.ErrNotFound)
}

func TestKitchenCancelOverridesPreparation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)
	_, err = f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: orderdomain.StatusMaking})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "late"})
	require.ErrorIs(t, err, orderdomain.ErrNotCancellable)

	res, err := f.svc.CancelKitchen(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "machine broken"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusMaking, res.PreviousStatus)
	assert.Equal(t, orderdomain.CancelledByKitchen, res.CancelledBy)
	assert.Contains(t, res.Message, "cancelled by the kitchen (previous status: making)")
}

func TestCancelItemCascadesToOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	res, err := f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{
		OrderID:  created.OrderID,
		MenuName: "Tea",
		Reason:   "customer request",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalRemaining)
	assert.Equal(t, orderdomain.StatusReceive, res.OrderStatus)
	assert.Equal(t, "Item 'Tea' has been cancelled. 1 item(s) remain in the order.", res.Message)
	require.Len(t, f.stock.itemRollbacks, 1)
	assert.Equal(t, "Tea", f.stock.itemRollbacks[0].MenuName)
	assert.Equal(t, 2, f.stock.itemRollbacks[0].Quantity)

	_, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{
		OrderID:  created.OrderID,
		MenuName: "Tea",
		Reason:   "again",
	})
	require.ErrorIs(t, err, orderdomain.ErrItemNotFound)

	res, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{
		OrderID: created.OrderID,
		ItemID:  res.RemainingItems[0].ItemID,
		Reason:  "customer request",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalRemaining)
	assert.Equal(t, orderdomain.StatusCancelled, res.OrderStatus)
	assert.Contains(t, res.Message, "The whole order has been cancelled")

	stored := f.load(t, created.OrderID)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "All items have been cancelled", *stored.CancelReason)
	assert.Equal(t, orderdomain.StockCompensated, stored.StockState)
	assert.Equal(t, []string{created.OrderID}, f.stock.rolledBack)
	assert.EqualValues(t, 2, f.events(t, orderdomain.EventOrderItemCancelled))
}

func TestCancelItemSelector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: "ORD1", Reason: "x"})
	require.ErrorIs(t, err, orderdomain.ErrItemSelector)

	_, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: "ORD1", ItemID: 7, MenuName: "Tea", Reason: "x"})
	require.ErrorIs(t, err, orderdomain.ErrItemSelector)

	_, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: "ORD1", MenuName: "Tea"})
	require.ErrorIs(t, err, orderdomain.ErrReasonRequired)
}

func TestApplyKitchenStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	applied, err := f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: orderdomain.StatusMaking})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: orderdomain.StatusMaking})
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: orderdomain.StatusDone})
	require.ErrorIs(t, err, orderdomain.ErrInvalidTransition)

	_, err = f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: "burnt"})
	require.ErrorIs(t, err, orderdomain.ErrInvalidStatus)

	applied, err = f.svc.ApplyKitchenStatus(ctx, orderdomain.StatusUpdate{OrderID: created.OrderID, Status: orderdomain.StatusHabis})
	require.NoError(t, err)
	assert.True(t, applied)

	view, err := f.svc.Status(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusHabis, view.Status)
	require.NotNil(t, view.CancelReason)
	assert.Equal(t, "Out of stock", *view.CancelReason)
	assert.Equal(t, orderdomain.StockCompensated, view.StockState)
	assert.Equal(t, 2, view.CancelledItems)
	assert.Empty(t, view.Orders)
	require.NotNil(t, view.TimeCancelled)
	assert.True(t, view.TimeCancelled.Equal(f.clk.Now()))
}

func TestReconcileRetriesConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock.consumeErr = &upstream.Error{Service: "inventory", Op: "consume", Err: errors.New("timeout")}

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StockPending, created.StockState)

	stored := f.load(t, created.OrderID)
	assert.Equal(t, 1, stored.StockAttempts)
	require.NotNil(t, stored.StockError)

	// inside the grace period nothing is retried
	res, err := f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.SweepResult{}, res)

	f.stock.consumeErr = nil
	f.clk.Advance(11 * time.Second)
	res, err = f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Consumed)
	assert.Equal(t, orderdomain.StockConsumed, f.load(t, created.OrderID).StockState)

	counts, err := f.svc.StockStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Consumed)
	assert.EqualValues(t, 1, counts.Total)
}

func TestReconcileGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock.consumeErr = errors.New("inventory down")

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	f.clk.Advance(11 * time.Second)
	res, err := f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)

	f.clk.Advance(11 * time.Second)
	res, err = f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	stored := f.load(t, created.OrderID)
	assert.Equal(t, orderdomain.StockFailed, stored.StockState)
	assert.Equal(t, 3, stored.StockAttempts)
}

func TestReconcileCompensatesCancelledOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	f.stock.rollbackErr = errors.New("inventory down")
	res, err := f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "wrong room"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StockRollbackPending, res.StockState)

	f.stock.rollbackErr = nil
	f.clk.Advance(11 * time.Second)
	sweep, err := f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Compensated)
	assert.Equal(t, orderdomain.StockCompensated, f.load(t, created.OrderID).StockState)
}

func TestReconcileTreatsUnconsumedRollbackAsCompensated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock.consumeErr = errors.New("inventory down")

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	f.stock.rollbackErr = &upstream.Rejected{Service: "inventory", Code: stockdomain.ErrNotConsumed.Error()}
	res, err := f.svc.CancelOrder(ctx, orderdomain.CancelRequest{OrderID: created.OrderID, Reason: "wrong room"})
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StockCompensated, res.StockState)
}

func TestReconcileReleasesCancelledItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	f.stock.itemErr = errors.New("inventory down")
	_, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: created.OrderID, MenuName: "Tea", Reason: "customer request"})
	require.NoError(t, err)

	var unreleased int64
	require.NoError(t, f.conn.Model(&orderdomain.Item{}).Where("stock_released = ?", false).Count(&unreleased).Error)
	assert.EqualValues(t, 1, unreleased)

	f.stock.itemErr = nil
	res, err := f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Released)

	require.NoError(t, f.conn.Model(&orderdomain.Item{}).Where("stock_released = ?", false).Count(&unreleased).Error)
	assert.Zero(t, unreleased)
}

func TestItemCancelledDuringConsumeIsReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var orderID string
	f.stock.beforeConsume = func() {
		var order orderdomain.Order
		require.NoError(t, f.conn.Order("created_at DESC").First(&order).Error)
		orderID = order.OrderID
		_, err := f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: orderID, MenuName: "Tea", Reason: "changed mind"})
		require.NoError(t, err)
		// nothing is returned before the consume lands
		assert.Empty(t, f.stock.itemRollbacks)
	}

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)
	require.Equal(t, created.OrderID, orderID)
	require.Len(t, f.stock.consumed, 1)
	assert.Len(t, f.stock.consumed[0], 2)

	f.clk.Advance(11 * time.Second)
	_, err = f.svc.ReconcileStock(ctx)
	require.NoError(t, err)

	require.Len(t, f.stock.itemRollbacks, 1)
	assert.Equal(t, "Tea", f.stock.itemRollbacks[0].MenuName)
	assert.Equal(t, 2, f.stock.itemRollbacks[0].Quantity)

	var unreleased int64
	require.NoError(t, f.conn.Model(&orderdomain.Item{}).Where("stock_released = ?", false).Count(&unreleased).Error)
	assert.Zero(t, unreleased)
	assert.Equal(t, orderdomain.StockConsumed, f.load(t, created.OrderID).StockState)
}

func TestItemCancelledBeforeConsumeIsNotRolledBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock.consumeErr = errors.New("inventory down")

	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)
	_, err = f.svc.CancelItem(ctx, orderdomain.CancelItemRequest{OrderID: created.OrderID, MenuName: "Tea", Reason: "changed mind"})
	require.NoError(t, err)

	f.stock.consumeErr = nil
	f.clk.Advance(11 * time.Second)
	res, err := f.svc.ReconcileStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Consumed)

	require.Len(t, f.stock.consumed, 1)
	require.Len(t, f.stock.consumed[0], 1)
	assert.Equal(t, "Caffe Latte", f.stock.consumed[0][0].MenuName)
	assert.Empty(t, f.stock.itemRollbacks)

	var unreleased int64
	require.NoError(t, f.conn.Model(&orderdomain.Item{}).Where("stock_released = ?", false).Count(&unreleased).Error)
	assert.Zero(t, unreleased)
}

func TestRooms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateRoom(ctx, "  Rooftop ")
	require.NoError(t, err)
	assert.Equal(t, "Rooftop", res.Room.Name)
	assert.False(t, res.Reactivated)

	_, err = f.svc.CreateRoom(ctx, "Rooftop")
	require.ErrorIs(t, err, orderdomain.ErrRoomExists)

	_, err = f.svc.CreateRoom(ctx, " ")
	require.ErrorIs(t, err, orderdomain.ErrInvalidRoomName)

	room, err := f.svc.DeactivateRoom(ctx, res.Room.ID)
	require.NoError(t, err)
	assert.False(t, room.IsActive)

	_, err = f.svc.DeactivateRoom(ctx, res.Room.ID)
	require.ErrorIs(t, err, orderdomain.ErrRoomInactive)

	_, err = f.svc.DeactivateRoom(ctx, 999)
	require.ErrorIs(t, err, orderdomain.ErrRoomNotFound)

	rooms, err := f.svc.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	res, err = f.svc.CreateRoom(ctx, "Rooftop")
	require.NoError(t, err)
	assert.True(t, res.Reactivated)
	assert.True(t, res.Room.IsActive)
}

func TestNewOrderIDFormat(t *testing.T) {
	id := NewOrderID(time.Date(2024, 5, 2, 3, 4, 5, 123456000, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^ORD20240502100405123456[0-9A-F]{6}$`), id)
	assert.NotEqual(t, id, NewOrderID(time.Date(2024, 5, 2, 3, 4, 5, 123456000, time.UTC)))
}

func TestJoinMenuNames(t *testing.T) {
	items := func(names ...string) []orderdomain.Item {
		out := make([]orderdomain.Item, 0, len(names))
		for _, name := range names {
			out = append(out, orderdomain.Item{MenuName: name})
		}
		return out
	}
	assert.Equal(t, "Tea", joinMenuNames(items("Tea")))
	assert.Equal(t, "Tea and Latte", joinMenuNames(items("Tea", "Latte")))
	assert.Equal(t, "Tea, Latte, and Mocha", joinMenuNames(items("Tea", "Latte", "Mocha")))
}

func TestStockErrorIsTruncatedOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("x", maxStockError-1) + "漢rest"
	got := truncate(msg)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxStockError-1, len(got))

	f := newFixture(t)
	ctx := context.Background()
	f.stock.consumeErr = errors.New(strings.Repeat("é", maxStockError))
	created, err := f.svc.Create(ctx, latteTea())
	require.NoError(t, err)

	stored := f.load(t, created.OrderID)
	require.NotNil(t, stored.StockError)
	assert.True(t, utf8.ValidString(*stored.StockError))
	assert.LessOrEqual(t, len(*stored.StockError), maxStockError)
}
