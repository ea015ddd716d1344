package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/idempotency"
	"github.com/smallbiznis/pantry/internal/kitchen/board"
	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCancelReason = "Cancelled"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      kitchendomain.Repository
	Orders    upstream.OrderClient
	Ledger    *idempotency.Ledger
	Hub       *board.Hub             `optional:"true"`
	Publisher outboxdomain.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      kitchendomain.Repository
	orders    upstream.OrderClient
	ledger    *idempotency.Ledger
	hub       *board.Hub
	publisher outboxdomain.Publisher
}

func New(p Params) kitchendomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("kitchen.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		orders:    p.Orders,
		ledger:    p.Ledger,
		hub:       p.Hub,
		publisher: p.Publisher,
	}
}

func (s *Service) ReceiveOrder(ctx context.Context, req kitchendomain.ReceiveRequest) (*kitchendomain.ReceiveResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, kitchendomain.ErrInvalidOrderID
	}
	open, err := s.IsOpen(ctx)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, kitchendomain.ErrKitchenClosed
	}

	var order *kitchendomain.Order
	applied, err := s.ledger.Run(ctx, orderdomain.EventOrderCreated, orderID, func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			order = existing
			return nil
		}
		now := s.clock.Now()
		order = &kitchendomain.Order{
			OrderID:      orderID,
			QueueNumber:  req.QueueNumber,
			Status:       orderdomain.StatusReceive,
			CustomerName: strings.TrimSpace(req.CustomerName),
			RoomName:     strings.TrimSpace(req.RoomName),
			TimeReceive:  now,
			UpdatedAt:    now,
		}
		order.SetItems(req.Orders)
		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	if order == nil {
		if order, err = s.repo.FindByID(ctx, s.db, orderID); err != nil {
			return nil, err
		}
	}
	if order == nil {
		return nil, kitchendomain.ErrNotFound
	}

	if applied {
		logger.FromContext(ctx).Info("kitchen order received",
			zap.String("order_id", orderID),
			zap.Int("queue_number", order.QueueNumber),
		)
		s.broadcast(ctx)
	}
	return &kitchendomain.ReceiveResult{
		OrderID:     order.OrderID,
		QueueNumber: order.QueueNumber,
		TimeReceive: order.TimeReceive,
		Duplicate:   !applied,
	}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req kitchendomain.UpdateRequest) (*kitchendomain.UpdateResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	status := orderdomain.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))
	reason := strings.TrimSpace(req.Reason)
	switch {
	case orderID == "":
		return nil, kitchendomain.ErrInvalidOrderID
	case !status.Valid():
		return nil, kitchendomain.ErrInvalidStatus
	case status.Aborted() && reason == "":
		return nil, kitchendomain.ErrReasonRequired
	}

	now := s.clock.Now()
	changed := false
	apply := func(tx *gorm.DB) error {
		order, err := s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return kitchendomain.ErrNotFound
		}
		if order.Status == status {
			return nil
		}
		if !order.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s to %s", kitchendomain.ErrInvalidTransition, order.Status, status)
		}

		order.Status = status
		order.Stamp(status, now)
		if status.Aborted() {
			order.CancelReason = &reason
		}
		order.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, order); err != nil {
			return err
		}
		changed = true

		if req.EventType != "" {
			return nil
		}
		return s.publish(ctx, tx, orderID, kitchendomain.StatusChangedPayload{
			OrderID:   orderID,
			Status:    status,
			Reason:    reason,
			ChangedAt: now,
		})
	}

	var err error
	if req.EventType != "" {
		_, err = s.ledger.Run(ctx, req.EventType, orderID, apply)
	} else {
		err = s.db.WithContext(ctx).Transaction(apply)
	}
	if err != nil {
		return nil, err
	}

	if changed {
		logger.FromContext(ctx).Info("kitchen order status updated",
			zap.String("order_id", orderID),
			zap.String("status", string(status)),
			zap.Bool("relayed", req.EventType != ""),
		)
		s.broadcast(ctx)
	}
	return &kitchendomain.UpdateResult{
		OrderID:   orderID,
		Status:    status,
		Timestamp: now,
		Applied:   changed,
	}, nil
}

func (s *Service) ApplyItemCancelled(ctx context.Context, event kitchendomain.ItemCancelledEvent) (bool, error) {
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		return false, kitchendomain.ErrInvalidOrderID
	}
	target := event.CancelledItem.MenuName
	if event.CancelledItem.ItemID != 0 {
		target = fmt.Sprint(event.CancelledItem.ItemID)
	}

	applied, err := s.ledger.Run(ctx, orderdomain.EventOrderItemCancelled, orderID+":"+target, func(tx *gorm.DB) error {
		order, err := s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return kitchendomain.ErrNotFound
		}

		order.SetItems(event.RemainingItems)
		note := cancelNote(event.CancelledItem.Item, event.CancelledItem.Reason)
		if order.CancelReason != nil && *order.CancelReason != "" {
			note = *order.CancelReason + "; " + note
		}
		order.CancelReason = &note
		if event.OrderStatus.Aborted() && !order.Status.Terminal() {
			order.Status = event.OrderStatus
		}
		order.UpdatedAt = s.clock.Now()
		return s.repo.Save(ctx, tx, order)
	})
	if err != nil || !applied {
		return applied, err
	}

	logger.FromContext(ctx).Info("kitchen order item cancelled",
		zap.String("order_id", orderID),
		zap.String("item", target),
		zap.Int("remaining", len(event.RemainingItems)),
	)
	s.broadcast(ctx)
	return true, nil
}

// Sync pulls the authoritative order from the order service and rebuilds
// the mirrored ticket.
func (s *Service) Sync(ctx context.Context, orderID string) (*kitchendomain.SyncResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, kitchendomain.ErrInvalidOrderID
	}
	local, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if local == nil {
		return nil, kitchendomain.ErrNotFound
	}

	snapshot, err := s.orders.Snapshot(ctx, orderID)
	if err != nil {
		if errors.Is(err, upstream.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: missing in order service", kitchendomain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %w", kitchendomain.ErrOrderUnavailable, err)
	}

	var order *kitchendomain.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return kitchendomain.ErrNotFound
		}
		now := s.clock.Now()
		applySnapshot(order, snapshot, now)
		order.UpdatedAt = now
		return s.repo.Save(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("kitchen order synced",
		zap.String("order_id", orderID),
		zap.String("status", string(order.Status)),
		zap.Int("active_items", len(snapshot.Items)),
		zap.Int("cancelled_items", len(snapshot.Cancelled)),
	)
	s.broadcast(ctx)
	return &kitchendomain.SyncResult{
		OrderID:        orderID,
		Status:         order.Status,
		ActiveItems:    len(snapshot.Items),
		CancelledItems: len(snapshot.Cancelled),
	}, nil
}

func applySnapshot(order *kitchendomain.Order, snapshot *upstream.OrderSnapshot, now time.Time) {
	items := make([]kitchendomain.Item, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		items = append(items, kitchendomain.Item{
			ItemID:     item.ItemID,
			MenuName:   item.MenuName,
			Quantity:   item.Quantity,
			Preference: item.Preference,
			Notes:      item.Notes,
		})
	}
	order.SetItems(items)
	if snapshot.QueueNumber > 0 {
		order.QueueNumber = snapshot.QueueNumber
	}

	status := orderdomain.Status(strings.ToLower(snapshot.Status))
	if status.Valid() {
		order.Status = status
		order.Stamp(status, now)
	}

	summary := ReasonSummary(snapshot.Cancelled)
	if order.Status.Aborted() {
		reason := firstNonEmpty(snapshot.CancelReason, summary, deref(order.CancelReason), defaultCancelReason)
		order.CancelReason = &reason
		return
	}
	if summary != "" {
		order.CancelReason = &summary
	}
}

// ReasonSummary renders "Latte (Vanilla): out of milk; Tea: customer request".
func ReasonSummary(cancelled []upstream.SnapshotItem) string {
	parts := make([]string, 0, len(cancelled))
	for _, item := range cancelled {
		parts = append(parts, cancelNote(kitchendomain.Item{
			MenuName:   firstNonEmpty(strings.TrimSpace(item.MenuName), "Item"),
			Preference: strings.TrimSpace(item.Preference),
		}, item.CancelReason))
	}
	return strings.Join(parts, "; ")
}

func cancelNote(item kitchendomain.Item, reason string) string {
	label := item.MenuName
	if item.Preference != "" {
		label += " (" + item.Preference + ")"
	}
	return label + ": " + firstNonEmpty(strings.TrimSpace(reason), defaultCancelReason)
}

// ListOrders returns active orders plus the ones finished today in
// Asia/Jakarta, oldest first.
func (s *Service) ListOrders(ctx context.Context) ([]kitchendomain.Order, error) {
	from := clock.StartOfBusinessDay(s.clock.Now())
	return s.repo.ListDisplay(ctx, s.db, from.UTC(), from.AddDate(0, 0, 1).UTC())
}

func (s *Service) Duration(ctx context.Context, orderID string) (*kitchendomain.Durations, error) {
	order, err := s.repo.FindByID(ctx, s.db, strings.TrimSpace(orderID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, kitchendomain.ErrNotFound
	}
	var out kitchendomain.Durations
	if order.TimeMaking != nil && order.TimeDeliver != nil {
		d := order.TimeDeliver.Sub(*order.TimeMaking).Seconds()
		out.MakingToDeliver = &d
	}
	if order.TimeMaking != nil && order.TimeDone != nil {
		d := order.TimeDone.Sub(*order.TimeMaking).Seconds()
		out.MakingToDone = &d
	}
	return &out, nil
}

// IsOpen reports the kitchen switch. A kitchen that was never switched is
// open.
func (s *Service) IsOpen(ctx context.Context) (bool, error) {
	state, err := s.repo.GetState(ctx, s.db)
	if err != nil {
		return false, err
	}
	return state == nil || state.IsOpen, nil
}

func (s *Service) SetOpen(ctx context.Context, open bool) (*kitchendomain.State, error) {
	state := kitchendomain.NewState(open, s.clock.Now())
	if err := s.repo.SaveState(ctx, s.db, state); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("kitchen switched", zap.Bool("is_open", open))
	return state, nil
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, orderID string, payload kitchendomain.StatusChangedPayload) error {
	if s.publisher == nil {
		return nil
	}
	if _, err := s.publisher.PublishTx(ctx, tx, orderID, kitchendomain.EventOrderStatusChanged, payload); err != nil {
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}

// broadcast pushes the active board to stream subscribers.
func (s *Service) broadcast(ctx context.Context) {
	if s.hub == nil {
		return
	}
	orders, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		s.log.Warn("load kitchen board failed", zap.Error(err))
		return
	}
	s.hub.Publish(board.SnapshotOf(orders))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
