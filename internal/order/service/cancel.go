package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const allItemsCancelledReason = "All items have been cancelled"

func (s *Service) CancelOrder(ctx context.Context, req orderdomain.CancelRequest) (*orderdomain.CancelResult, error) {
	return s.cancel(ctx, req, false)
}

func (s *Service) CancelKitchen(ctx context.Context, req orderdomain.CancelRequest) (*orderdomain.CancelResult, error) {
	return s.cancel(ctx, req, true)
}

func (s *Service) cancel(ctx context.Context, req orderdomain.CancelRequest, byKitchen bool) (*orderdomain.CancelResult, error) {
	orderID := strings.TrimSpace(req.OrderID)
	reason := strings.TrimSpace(req.Reason)
	if orderID == "" {
		return nil, orderdomain.ErrInvalidOrderID
	}
	if reason == "" {
		return nil, orderdomain.ErrReasonRequired
	}

	var (
		order    *orderdomain.Order
		previous orderdomain.Status
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return notFound(orderID)
		}
		previous = order.Status
		if err := checkCancellable(order, byKitchen); err != nil {
			return err
		}

		s.abort(order, orderdomain.StatusCancelled, reason, now)
		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.SaveItems(ctx, tx, order.Items); err != nil {
			return err
		}

		payload := orderdomain.OrderCancelledPayload{
			OrderID:     order.OrderID,
			Reason:      reason,
			CancelledAt: now,
		}
		if byKitchen {
			payload.PreviousStatus = previous
			payload.CancelledBy = orderdomain.CancelledByKitchen
		}
		return s.publish(ctx, tx, order.OrderID, orderdomain.EventOrderCancelled, payload)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order cancelled",
		zap.String("order_id", order.OrderID),
		zap.String("previous_status", string(previous)),
		zap.Bool("by_kitchen", byKitchen),
	)

	if s.compensate(ctx, order) == outcomeDone {
		order.StockState = orderdomain.StockCompensated
	}
	s.syncKitchen(ctx, order.OrderID)

	menus := joinMenuNames(order.Items)
	result := &orderdomain.CancelResult{
		Message:      fmt.Sprintf("The order for %s has been cancelled.", menus),
		OrderID:      order.OrderID,
		QueueNumber:  order.QueueNumber,
		CustomerName: order.CustomerName,
		RoomName:     order.RoomName,
		Status:       order.Status,
		CancelReason: reason,
		CreatedAt:    order.CreatedAt,
		CancelledAt:  now,
		StockState:   order.StockState,
		Orders:       orderdomain.NewItemViews(order.Items),
	}
	if byKitchen {
		result.PreviousStatus = previous
		result.CancelledBy = orderdomain.CancelledByKitchen
		result.Message = fmt.Sprintf("The order for %s has been cancelled by the kitchen (previous status: %s).", menus, previous)
	}
	return result, nil
}

func checkCancellable(order *orderdomain.Order, byKitchen bool) error {
	switch {
	case order.Status == orderdomain.StatusCancelled:
		return orderdomain.Reject(orderdomain.ErrAlreadyCancelled,
			fmt.Sprintf("Order %s has already been cancelled.", order.OrderID), nil)
	case order.Status.Terminal():
		return orderdomain.Reject(orderdomain.ErrOrderClosed,
			fmt.Sprintf("Order %s is already %s and cannot be cancelled.", order.OrderID, order.Status), nil)
	case !byKitchen && order.Status != orderdomain.StatusReceive:
		return orderdomain.Reject(orderdomain.ErrNotCancellable,
			fmt.Sprintf("Order %s is already being prepared and cannot be cancelled.", order.OrderID), nil)
	}
	return nil
}

// abort moves the order to cancelled or habis, cancels its remaining lines
// and queues the stock rollback.
func (s *Service) abort(order *orderdomain.Order, status orderdomain.Status, reason string, now time.Time) {
	order.Status = status
	order.CancelReason = &reason
	order.UpdatedAt = now
	if order.StockState != orderdomain.StockCompensated {
		order.StockState = orderdomain.StockRollbackPending
	}
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status != orderdomain.ItemActive {
			continue
		}
		itemReason := reason
		item.Status = orderdomain.ItemCancelled
		item.CancelledReason = &itemReason
		item.CancelledAt = &now
	}
}

func (s *Service) CancelItem(ctx context.Context, req orderdomain.CancelItemRequest) (*orderdomain.CancelItemResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.MenuName = strings.TrimSpace(req.MenuName)
	req.Reason = strings.TrimSpace(req.Reason)
	switch {
	case req.OrderID == "":
		return nil, orderdomain.ErrInvalidOrderID
	case req.Reason == "":
		return nil, orderdomain.ErrReasonRequired
	case req.ItemID == 0 && req.MenuName == "":
		return nil, orderdomain.Reject(orderdomain.ErrItemSelector, "Either item_id or menu_name must be provided.", nil)
	case req.ItemID != 0 && req.MenuName != "":
		return nil, orderdomain.Reject(orderdomain.ErrItemSelector, "Provide either item_id or menu_name, not both.", nil)
	}

	var (
		order     *orderdomain.Order
		cancelled orderdomain.Item
		remaining []orderdomain.Item
	)
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.repo.LockByID(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return notFound(req.OrderID)
		}
		if order.Status.Terminal() {
			return orderdomain.Reject(orderdomain.ErrOrderClosed,
				fmt.Sprintf("Order %s is already %s and cannot be changed.", order.OrderID, order.Status), nil)
		}

		idx := findActiveItem(order.Items, req)
		if idx < 0 {
			selector := "menu: " + req.MenuName
			if req.ItemID != 0 {
				selector = "ID: " + req.ItemID.String()
			}
			return orderdomain.Reject(orderdomain.ErrItemNotFound,
				fmt.Sprintf("Item with %s was not found or is already cancelled.", selector), nil)
		}

		item := &order.Items[idx]
		reason := req.Reason
		item.Status = orderdomain.ItemCancelled
		item.CancelledReason = &reason
		item.CancelledAt = &now
		// A consume may be in flight; the saga settles the line once the
		// order's stock is consumed.
		item.StockReleased = false
		cancelled = *item

		remaining = order.ActiveItems()
		order.UpdatedAt = now
		if len(remaining) == 0 {
			s.abort(order, orderdomain.StatusCancelled, allItemsCancelledReason, now)
			// The full rollback covers this line.
			order.Items[idx].StockReleased = true
			cancelled = order.Items[idx]
		}

		if err := s.repo.SaveOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.SaveItems(ctx, tx, order.Items); err != nil {
			return err
		}

		cancelledPayload := orderdomain.NewPayloadItem(cancelled)
		cancelledPayload.Reason = reason
		return s.publish(ctx, tx, order.OrderID, orderdomain.EventOrderItemCancelled, orderdomain.OrderItemCancelledPayload{
			OrderID:        order.OrderID,
			Type:           "item_cancelled",
			CancelledItem:  cancelledPayload,
			RemainingItems: orderdomain.NewPayloadItems(remaining),
			CancelledAt:    now,
			OrderStatus:    order.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("order item cancelled",
		zap.String("order_id", order.OrderID),
		zap.String("item_id", cancelled.ID.String()),
		zap.Int("remaining", len(remaining)),
	)

	if order.Status.Aborted() {
		s.compensate(ctx, order)
	} else if order.StockState == orderdomain.StockConsumed {
		s.release(ctx, cancelled)
	}

	message := fmt.Sprintf("Item '%s' has been cancelled. %d item(s) remain in the order.", cancelled.MenuName, len(remaining))
	if len(remaining) == 0 {
		message = fmt.Sprintf("Item '%s' has been cancelled. The whole order has been cancelled because no items remain.", cancelled.MenuName)
	}
	return &orderdomain.CancelItemResult{
		Message:        message,
		OrderID:        order.OrderID,
		QueueNumber:    order.QueueNumber,
		CustomerName:   order.CustomerName,
		RoomName:       order.RoomName,
		OrderStatus:    order.Status,
		CancelledItem:  orderdomain.NewItemView(cancelled),
		RemainingItems: orderdomain.NewItemViews(remaining),
		TotalRemaining: len(remaining),
	}, nil
}

func findActiveItem(items []orderdomain.Item, req orderdomain.CancelItemRequest) int {
	for i, item := range items {
		if item.Status != orderdomain.ItemActive {
			continue
		}
		if req.ItemID != 0 && item.ID == req.ItemID {
			return i
		}
		if req.ItemID == 0 && item.MenuName == req.MenuName {
			return i
		}
	}
	return -1
}

func notFound(orderID string) error {
	return orderdomain.Reject(orderdomain.ErrNotFound, fmt.Sprintf("Order %s was not found.", orderID), nil)
}
