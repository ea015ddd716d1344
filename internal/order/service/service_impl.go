package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/config"
	"github.com/smallbiznis/pantry/internal/idempotency"
	"github.com/smallbiznis/pantry/internal/menu"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
	"github.com/smallbiznis/pantry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queueAttempts = 5

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      orderdomain.Repository
	Menu      menu.Client
	Kitchen   upstream.KitchenClient
	Stock     upstream.StockClient
	Ledger    *idempotency.Ledger
	Publisher outboxdomain.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	repo      orderdomain.Repository
	menu      menu.Client
	kitchen   upstream.KitchenClient
	stock     upstream.StockClient
	ledger    *idempotency.Ledger
	publisher outboxdomain.Publisher

	flavorRequired map[string]struct{}
}

func New(p Params) *Service {
	required := make(map[string]struct{}, len(p.Config.FlavorRequiredMenus))
	for _, name := range p.Config.FlavorRequiredMenus {
		required[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("order.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		repo:           p.Repo,
		menu:           p.Menu,
		kitchen:        p.Kitchen,
		stock:          p.Stock,
		ledger:         p.Ledger,
		publisher:      p.Publisher,
		flavorRequired: required,
	}
}

// itemCheck is the per-line outcome of the intake stock check.
type itemCheck struct {
	req         orderdomain.ItemRequest
	unavailable *orderdomain.Unavailable
}

func (s *Service) Create(ctx context.Context, req orderdomain.CreateRequest) (*orderdomain.CreateResult, error) {
	return s.create(ctx, req, false)
}

// CreateCustom accepts any flavor on a line. The inventory flavor mappings
// decide whether it can be made.
func (s *Service) CreateCustom(ctx context.Context, req orderdomain.CreateRequest) (*orderdomain.CreateResult, error) {
	return s.create(ctx, req, true)
}

func (s *Service) create(ctx context.Context, req orderdomain.CreateRequest, custom bool) (*orderdomain.CreateResult, error) {
	req, err := normalizeCreate(req)
	if err != nil {
		return nil, err
	}
	if err := s.validateRoom(ctx, req.RoomName); err != nil {
		return nil, err
	}
	if err := s.validateMenus(ctx, req.Orders); err != nil {
		return nil, err
	}
	if err := s.validateFlavors(ctx, req.Orders, custom); err != nil {
		return nil, err
	}
	if err := s.ensureKitchenOpen(ctx); err != nil {
		return nil, err
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = NewOrderID(s.clock.Now())
	}
	existing, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateOrder(orderID)
	}

	checks, err := s.checkStock(ctx, orderID, req.Orders)
	if err != nil {
		return nil, err
	}
	unavailable := make([]orderdomain.Unavailable, 0)
	for _, check := range checks {
		if check.unavailable != nil {
			unavailable = append(unavailable, *check.unavailable)
		}
	}
	if len(unavailable) == len(checks) {
		return nil, orderdomain.Reject(orderdomain.ErrOutOfStock,
			"None of the ordered menus are available:\n"+shortageLines(unavailable, 5),
			map[string]any{
				"available_items":   []orderdomain.ItemRequest{},
				"unavailable_items": unavailable,
			})
	}

	order := s.buildOrder(orderID, req, checks)
	if err := s.insert(ctx, order); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order created",
		zap.String("order_id", order.OrderID),
		zap.Int("queue_number", order.QueueNumber),
		zap.Bool("is_partial", order.IsPartial),
		zap.Bool("custom", custom),
	)

	if s.consume(ctx, order) == outcomeDone {
		order.StockState = orderdomain.StockConsumed
	}

	active := order.ActiveItems()
	cancelled := order.CancelledItems()
	return &orderdomain.CreateResult{
		Message:         createdMessage(order, unavailable),
		OrderID:         order.OrderID,
		QueueNumber:     order.QueueNumber,
		CustomerName:    order.CustomerName,
		RoomName:        order.RoomName,
		Status:          order.Status,
		CreatedAt:       order.CreatedAt,
		IsPartial:       order.IsPartial,
		StockState:      order.StockState,
		TotalItems:      len(order.Items),
		AvailableItems:  len(active),
		CancelledItems:  len(cancelled),
		Orders:          orderdomain.NewItemViews(active),
		CancelledOrders: orderdomain.NewItemViews(cancelled),
		Unavailable:     unavailable,
	}, nil
}

func normalizeCreate(req orderdomain.CreateRequest) (orderdomain.CreateRequest, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.RoomName = strings.TrimSpace(req.RoomName)
	if req.CustomerName == "" {
		return req, orderdomain.ErrInvalidCustomer
	}
	if req.RoomName == "" {
		return req, orderdomain.ErrInvalidRoom
	}
	if len(req.Orders) == 0 {
		return req, orderdomain.ErrEmptyItems
	}
	items := make([]orderdomain.ItemRequest, 0, len(req.Orders))
	for _, item := range req.Orders {
		item.MenuName = strings.TrimSpace(item.MenuName)
		item.Preference = strings.TrimSpace(item.Preference)
		item.Notes = strings.TrimSpace(item.Notes)
		if item.MenuName == "" || item.Quantity < 1 {
			return req, orderdomain.ErrInvalidItem
		}
		items = append(items, item)
	}
	req.Orders = items
	return req, nil
}

func (s *Service) validateRoom(ctx context.Context, name string) error {
	room, err := s.repo.FindRoomByName(ctx, s.db, name)
	if err != nil {
		return err
	}
	if room != nil && room.IsActive {
		return nil
	}

	rooms, err := s.repo.ListActiveRooms(ctx, s.db)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		return orderdomain.Reject(orderdomain.ErrInvalidRoom, "No rooms are available at the moment.", nil)
	}
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		names = append(names, r.Name)
	}
	msg := fmt.Sprintf("Room '%s' is not valid. Available rooms:\n\n%s\n\nPlease choose one of the available rooms.",
		name, numbered(names))
	return orderdomain.Reject(orderdomain.ErrInvalidRoom, msg, map[string]any{"available_rooms": names})
}

func (s *Service) validateMenus(ctx context.Context, items []orderdomain.ItemRequest) error {
	names, err := s.menu.MenuNames(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", orderdomain.ErrMenuUnavailable, err)
	}
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		known[name] = struct{}{}
	}
	var invalid []string
	for _, item := range items {
		if _, ok := known[item.MenuName]; !ok {
			invalid = append(invalid, item.MenuName)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return orderdomain.Reject(orderdomain.ErrUnknownMenu,
		"The following menus were not found or are unavailable: "+strings.Join(invalid, ", "),
		map[string]any{"invalid_menus": invalid, "available_menus": names})
}

func (s *Service) validateFlavors(ctx context.Context, items []orderdomain.ItemRequest, custom bool) error {
	for _, item := range items {
		_, required := s.flavorRequired[strings.ToLower(item.MenuName)]
		if item.Preference == "" && !required {
			continue
		}
		if custom && item.Preference != "" {
			continue
		}

		flavors, err := s.menu.Flavors(ctx, item.MenuName)
		if err != nil && !errors.Is(err, menu.ErrMenuNotFound) {
			return fmt.Errorf("%w: %w", orderdomain.ErrMenuUnavailable, err)
		}

		if item.Preference == "" {
			if len(flavors) == 0 {
				continue
			}
			if custom {
				return orderdomain.Reject(orderdomain.ErrFlavorRequired,
					fmt.Sprintf("A flavor is still required for %s on a custom order. Known flavors:\n\n%s\n\nAny flavor may be used, including ones not listed.",
						item.MenuName, numbered(flavors)),
					map[string]any{"menu_item": item.MenuName, "available_flavors": flavors})
			}
			return orderdomain.Reject(orderdomain.ErrFlavorRequired,
				fmt.Sprintf("A flavor is required for %s. Available flavors:\n\n%s\n\nPut one of them in 'preference' and send the order again.",
					item.MenuName, numbered(flavors)),
				map[string]any{"menu_item": item.MenuName, "available_flavors": flavors})
		}

		if len(flavors) == 0 {
			return orderdomain.Reject(orderdomain.ErrFlavorNotOffered,
				fmt.Sprintf("Menu '%s' has no flavor variants.", item.MenuName),
				map[string]any{"menu_item": item.MenuName, "invalid_preference": item.Preference})
		}
		if !containsFold(flavors, item.Preference) {
			return orderdomain.Reject(orderdomain.ErrInvalidFlavor,
				fmt.Sprintf("Flavor '%s' is not available for %s. Available flavors:\n\n%s",
					item.Preference, item.MenuName, numbered(flavors)),
				map[string]any{"menu_item": item.MenuName, "invalid_flavor": item.Preference, "available_flavors": flavors})
		}
	}
	return nil
}

func (s *Service) ensureKitchenOpen(ctx context.Context) error {
	open, err := s.kitchen.IsOpen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", orderdomain.ErrKitchenUnavailable, err)
	}
	if !open {
		return orderdomain.Reject(orderdomain.ErrKitchenClosed, "The kitchen is closed and cannot accept orders.", nil)
	}
	return nil
}

// checkStock checks every line on its own so one short line does not
// reject the rest. Transport failures reject the whole order.
func (s *Service) checkStock(ctx context.Context, orderID string, items []orderdomain.ItemRequest) ([]itemCheck, error) {
	checks := make([]itemCheck, 0, len(items))
	for _, item := range items {
		result, err := s.stock.Check(ctx, stockdomain.Request{
			OrderID: orderID + "_check_" + item.MenuName,
			Items:   []stockdomain.Item{item.StockItem()},
		})
		check := itemCheck{req: item}
		var rejected *upstream.Rejected
		switch {
		case errors.As(err, &rejected):
			check.unavailable = &orderdomain.Unavailable{
				Item:      item,
				Reason:    rejected.Error(),
				Shortages: []stockdomain.Shortage{},
			}
		case err != nil:
			return nil, fmt.Errorf("%w: %w", orderdomain.ErrStockUnavailable, err)
		case !result.CanFulfill:
			check.unavailable = &orderdomain.Unavailable{
				Item:               item,
				Reason:             "Insufficient stock for " + item.MenuName,
				Shortages:          result.Shortages,
				PartialSuggestions: result.PartialSuggestions,
			}
		}
		checks = append(checks, check)
	}
	return checks, nil
}

func (s *Service) buildOrder(orderID string, req orderdomain.CreateRequest, checks []itemCheck) *orderdomain.Order {
	now := s.clock.Now()
	order := &orderdomain.Order{
		OrderID:      orderID,
		QueueDate:    clock.BusinessDate(now),
		CustomerName: req.CustomerName,
		RoomName:     req.RoomName,
		Status:       orderdomain.StatusReceive,
		StockState:   orderdomain.StockPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        make([]orderdomain.Item, 0, len(checks)),
	}
	for _, check := range checks {
		item := orderdomain.Item{
			ID:            s.genID.Generate(),
			OrderID:       orderID,
			MenuName:      check.req.MenuName,
			Quantity:      check.req.Quantity,
			Preference:    check.req.Preference,
			Notes:         check.req.Notes,
			Status:        orderdomain.ItemActive,
			StockReleased: true,
		}
		if check.unavailable != nil {
			reason := check.unavailable.Reason
			item.Status = orderdomain.ItemCancelled
			item.CancelledReason = &reason
			item.CancelledAt = &now
			order.IsPartial = true
		}
		order.Items = append(order.Items, item)
	}
	return order
}

// insert allocates the next queue number of the business day and stores the
// order with its created event, retrying when a concurrent order takes the
// same number.
func (s *Service) insert(ctx context.Context, order *orderdomain.Order) error {
	for attempt := 1; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			next, err := s.repo.NextQueueNumber(ctx, tx, order.QueueDate)
			if err != nil {
				return err
			}
			order.QueueNumber = next
			if err := s.repo.Insert(ctx, tx, order); err != nil {
				return err
			}
			return s.publish(ctx, tx, order.OrderID, orderdomain.EventOrderCreated, orderdomain.OrderCreatedPayload{
				OrderID:        order.OrderID,
				QueueNumber:    order.QueueNumber,
				Orders:         orderdomain.NewPayloadItems(order.ActiveItems()),
				CustomerName:   order.CustomerName,
				RoomName:       order.RoomName,
				IsPartial:      order.IsPartial,
				CancelledItems: orderdomain.NewPayloadItems(order.CancelledItems()),
			})
		})
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return err
		}

		existing, findErr := s.repo.FindByID(ctx, s.db, order.OrderID)
		if findErr != nil {
			return findErr
		}
		if existing != nil {
			return duplicateOrder(order.OrderID)
		}
		if attempt == queueAttempts {
			return fmt.Errorf("allocate queue number: %w", err)
		}
		s.log.Debug("queue number taken, retrying",
			zap.String("order_id", order.OrderID),
			zap.Int("queue_number", order.QueueNumber),
		)
	}
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, orderID, eventType string, payload any) error {
	if s.publisher == nil {
		return nil
	}
	if _, err := s.publisher.PublishTx(ctx, tx, orderID, eventType, payload); err != nil {
		logger.FromContext(ctx).Error("publish order event failed",
			zap.String("order_id", orderID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// syncKitchen asks the kitchen to pull the order right away. The outbox
// still delivers the event if this fails.
func (s *Service) syncKitchen(ctx context.Context, orderID string) {
	if err := s.kitchen.Sync(ctx, orderID); err != nil {
		logger.FromContext(ctx).Warn("kitchen sync failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

// NewOrderID returns "ORD" + the Asia/Jakarta timestamp with microseconds
// + six upper-case hex characters.
func NewOrderID(now time.Time) string {
	local := now.In(clock.Jakarta)
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD%s%06d%s", local.Format("20060102150405"), local.Nanosecond()/1000, suffix)
}

func duplicateOrder(orderID string) error {
	return orderdomain.Reject(orderdomain.ErrDuplicateOrder,
		fmt.Sprintf("Order %s is already being processed.", orderID), nil)
}
