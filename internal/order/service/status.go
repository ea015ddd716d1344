package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) ApplyKitchenStatus(ctx context.Context, req orderdomain.StatusUpdate) (bool, error) {
	orderID := strings.TrimSpace(req.OrderID)
	status := orderdomain.Status(strings.ToLower(strings.TrimSpace(string(req.Status))))
	reason := strings.TrimSpace(req.Reason)
	if orderID == "" {
		return false, orderdomain.ErrInvalidOrderID
	}
	if !status.Valid() {
		return false, orderdomain.Reject(orderdomain.ErrInvalidStatus,
			fmt.Sprintf("Status '%s' is not valid.", req.Status), nil)
	}
	if status.Aborted() && reason == "" {
		reason = "Cancelled"
		if status == orderdomain.StatusHabis {
			reason = "Out of stock"
		}
	}

	var (
		order    *orderdomain.Order
		previous orderdomain.Status
	)
	applied, err := s.ledger.Run(ctx, orderdomain.EventOrderStatusChanged, orderID+":"+string(status), func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return notFound(orderID)
		}
		previous = order.Status
		if order.Status == status {
			return nil
		}
		if !order.Status.CanTransition(status) {
			return orderdomain.Reject(orderdomain.ErrInvalidTransition,
				fmt.Sprintf("Order %s cannot move from %s to %s.", orderID, order.Status, status), nil)
		}

		now := s.clock.Now()
		if status.Aborted() {
			s.abort(order, status, reason, now)
			if err := s.repo.SaveItems(ctx, tx, order.Items); err != nil {
				return err
			}
		} else {
			order.Status = status
			order.UpdatedAt = now
		}
		return s.repo.SaveOrder(ctx, tx, order)
	})
	if err != nil || !applied {
		return applied, err
	}

	if previous != status {
		logger.FromContext(ctx).Info("order status applied",
			zap.String("order_id", orderID),
			zap.String("previous_status", string(previous)),
			zap.String("status", string(status)),
		)
	}
	if status.Aborted() && previous != status {
		s.compensate(ctx, order)
	}
	return true, nil
}

func (s *Service) Status(ctx context.Context, orderID string) (*orderdomain.StatusView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, orderdomain.ErrInvalidOrderID
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, notFound(orderID)
	}
	return statusView(order), nil
}

// StatusByQueue looks the number up in today's Asia/Jakarta queue.
func (s *Service) StatusByQueue(ctx context.Context, queueNumber int) (*orderdomain.StatusView, error) {
	if queueNumber < 1 {
		return nil, orderdomain.ErrInvalidOrderID
	}
	order, err := s.repo.FindByQueue(ctx, s.db, clock.BusinessDate(s.clock.Now()), queueNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.Reject(orderdomain.ErrNotFound,
			fmt.Sprintf("Queue number %d was not found today.", queueNumber), nil)
	}
	return statusView(order), nil
}

func (s *Service) Today(ctx context.Context) (*orderdomain.TodayView, error) {
	date := clock.BusinessDate(s.clock.Now())
	orders, err := s.repo.ListByDate(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	return &orderdomain.TodayView{Date: date, Orders: orders, TotalOrders: len(orders)}, nil
}

func (s *Service) List(ctx context.Context) ([]orderdomain.Order, error) {
	return s.repo.List(ctx, s.db)
}

func statusView(order *orderdomain.Order) *orderdomain.StatusView {
	active := order.ActiveItems()
	cancelled := order.CancelledItems()
	view := &orderdomain.StatusView{
		OrderID:         order.OrderID,
		QueueNumber:     order.QueueNumber,
		CustomerName:    order.CustomerName,
		RoomName:        order.RoomName,
		Status:          order.Status,
		CreatedAt:       order.CreatedAt,
		CancelReason:    order.CancelReason,
		IsPartial:       order.IsPartial,
		StockState:      order.StockState,
		TotalItems:      len(order.Items),
		ActiveItems:     len(active),
		CancelledItems:  len(cancelled),
		Orders:          orderdomain.NewItemViews(active),
		CancelledOrders: orderdomain.NewItemViews(cancelled),
	}
	if order.Status.Aborted() {
		at := order.UpdatedAt
		if latest := latestCancel(cancelled); latest != nil {
			at = *latest
		}
		view.TimeCancelled = &at
	}
	return view
}

func latestCancel(items []orderdomain.Item) *time.Time {
	var latest *time.Time
	for _, item := range items {
		if item.CancelledAt == nil {
			continue
		}
		if latest == nil || item.CancelledAt.After(*latest) {
			latest = item.CancelledAt
		}
	}
	return latest
}
