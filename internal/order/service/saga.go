package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"github.com/smallbiznis/pantry/internal/scheduler"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweepBatchSize = 50
	maxStockError  = 500
)

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeFailed
)

func stockItems(items []orderdomain.Item) []stockdomain.Item {
	out := make([]stockdomain.Item, 0, len(items))
	for _, item := range items {
		out = append(out, stockdomain.Item{
			MenuName:   item.MenuName,
			Quantity:   item.Quantity,
			Preference: item.Preference,
		})
	}
	return out
}

// consume deducts the active lines of an order after it committed. The
// inventory side is idempotent per order id, so retries are safe.
func (s *Service) consume(ctx context.Context, order *orderdomain.Order) outcome {
	log := logger.FromContext(ctx).With(zap.String("order_id", order.OrderID))
	active := order.ActiveItems()
	sent := make([]snowflake.ID, 0, len(active))
	for _, item := range active {
		sent = append(sent, item.ID)
	}
	result, err := s.stock.Consume(ctx, stockdomain.Request{
		OrderID: order.OrderID,
		Items:   stockItems(active),
	})
	if err == nil && !result.CanFulfill {
		err = errors.New(result.Message)
	}
	now := s.clock.Now()

	if err == nil {
		var moved bool
		terr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			moved, err = s.repo.TransitionStock(ctx, tx, order.OrderID,
				[]orderdomain.StockState{orderdomain.StockPending, orderdomain.StockFailed}, orderdomain.StockConsumed, now)
			if err != nil || !moved {
				return err
			}
			// Lines cancelled before the request was built drew nothing.
			return s.repo.MarkUnsentReleased(ctx, tx, order.OrderID, sent)
		})
		if terr != nil {
			log.Error("record stock consumption failed", zap.Error(terr))
			return outcomeRetry
		}
		if !moved {
			// Cancelled while the consume was in flight; roll back again.
			if _, terr := s.repo.TransitionStock(ctx, s.db, order.OrderID,
				[]orderdomain.StockState{orderdomain.StockCompensated}, orderdomain.StockRollbackPending, now); terr != nil {
				log.Error("reopen stock rollback failed", zap.Error(terr))
			}
			return outcomeRetry
		}
		log.Info("stock consumed")
		s.releaseCancelled(ctx, order.OrderID)
		return outcomeDone
	}

	next, out := orderdomain.StockPending, outcomeRetry
	if order.StockAttempts+1 >= s.maxAttempts() || errors.Is(err, stockdomain.ErrRecordRolledBack) {
		next, out = orderdomain.StockFailed, outcomeFailed
	}
	if rerr := s.repo.RecordStockAttempt(ctx, s.db, order.OrderID,
		[]orderdomain.StockState{orderdomain.StockPending}, next, truncate(err.Error()), now); rerr != nil {
		log.Error("record stock attempt failed", zap.Error(rerr))
	}
	log.Warn("stock consume failed",
		zap.Int("attempt", order.StockAttempts+1),
		zap.String("stock_state", string(next)),
		zap.Error(err),
	)
	return out
}

// compensate returns everything an aborted order consumed.
func (s *Service) compensate(ctx context.Context, order *orderdomain.Order) outcome {
	log := logger.FromContext(ctx).With(zap.String("order_id", order.OrderID))
	_, err := s.stock.Rollback(ctx, order.OrderID)
	now := s.clock.Now()
	if err == nil || errors.Is(err, stockdomain.ErrNotConsumed) {
		_, terr := s.repo.TransitionStock(ctx, s.db, order.OrderID,
			[]orderdomain.StockState{orderdomain.StockRollbackPending, orderdomain.StockPending}, orderdomain.StockCompensated, now)
		if terr != nil {
			log.Error("record stock compensation failed", zap.Error(terr))
			return outcomeRetry
		}
		log.Info("stock compensated", zap.Bool("was_consumed", err == nil))
		return outcomeDone
	}

	next, out := orderdomain.StockRollbackPending, outcomeRetry
	if order.StockAttempts+1 >= s.maxAttempts() {
		next, out = orderdomain.StockFailed, outcomeFailed
	}
	if rerr := s.repo.RecordStockAttempt(ctx, s.db, order.OrderID,
		[]orderdomain.StockState{orderdomain.StockRollbackPending, orderdomain.StockPending}, next, truncate(err.Error()), now); rerr != nil {
		log.Error("record stock attempt failed", zap.Error(rerr))
	}
	log.Warn("stock rollback failed",
		zap.Int("attempt", order.StockAttempts+1),
		zap.String("stock_state", string(next)),
		zap.Error(err),
	)
	return out
}

// release returns the stock of one cancelled line of a live order.
func (s *Service) release(ctx context.Context, item orderdomain.Item) bool {
	log := logger.FromContext(ctx).With(
		zap.String("order_id", item.OrderID),
		zap.String("item_id", item.ID.String()),
	)
	_, err := s.stock.RollbackItems(ctx, item.OrderID, stockItems([]orderdomain.Item{item}))
	if err != nil && !errors.Is(err, stockdomain.ErrNotConsumed) && !errors.Is(err, stockdomain.ErrRecordRolledBack) {
		log.Warn("item stock rollback failed", zap.Error(err))
		return false
	}
	if err := s.repo.MarkItemReleased(ctx, s.db, item.ID); err != nil {
		log.Error("mark item released failed", zap.Error(err))
		return false
	}
	return true
}

// releaseCancelled returns lines cancelled while the consume was in flight.
func (s *Service) releaseCancelled(ctx context.Context, orderID string) {
	items, err := s.repo.ListUnreleasedItems(ctx, s.db, orderID, sweepBatchSize)
	if err != nil {
		logger.FromContext(ctx).Warn("list cancelled lines failed", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	for _, item := range items {
		s.release(ctx, item)
	}
}

func (s *Service) ReconcileStock(ctx context.Context) (orderdomain.SweepResult, error) {
	var res orderdomain.SweepResult
	before := s.clock.Now().Add(-s.cfg.Stock.SweepGrace)

	pending, err := s.repo.ListStockWork(ctx, s.db,
		[]orderdomain.StockState{orderdomain.StockPending}, false, before, sweepBatchSize)
	if err != nil {
		return res, err
	}
	for i := range pending {
		switch s.consume(ctx, &pending[i]) {
		case outcomeDone:
			res.Consumed++
		case outcomeFailed:
			res.Failed++
		default:
			res.Retrying++
		}
	}

	aborted, err := s.repo.ListStockWork(ctx, s.db,
		[]orderdomain.StockState{orderdomain.StockPending, orderdomain.StockRollbackPending}, true, before, sweepBatchSize)
	if err != nil {
		return res, err
	}
	for i := range aborted {
		switch s.compensate(ctx, &aborted[i]) {
		case outcomeDone:
			res.Compensated++
		case outcomeFailed:
			res.Failed++
		default:
			res.Retrying++
		}
	}

	items, err := s.repo.ListUnreleasedItems(ctx, s.db, "", sweepBatchSize)
	if err != nil {
		return res, err
	}
	for _, item := range items {
		if s.release(ctx, item) {
			res.Released++
		} else {
			res.Retrying++
		}
	}
	return res, nil
}

func (s *Service) StockStatus(ctx context.Context) (orderdomain.StockStateCounts, error) {
	counts, err := s.repo.CountStockStates(ctx, s.db)
	if err != nil {
		return orderdomain.StockStateCounts{}, err
	}
	out := orderdomain.StockStateCounts{
		Pending:         counts[orderdomain.StockPending],
		Consumed:        counts[orderdomain.StockConsumed],
		Failed:          counts[orderdomain.StockFailed],
		RollbackPending: counts[orderdomain.StockRollbackPending],
		Compensated:     counts[orderdomain.StockCompensated],
	}
	for _, n := range counts {
		out.Total += n
	}
	return out, nil
}

// Job runs the stock sweep under the scheduler.
func (s *Service) Job() scheduler.Job {
	interval := s.cfg.Stock.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return scheduler.Job{
		Name:      "order_stock_reconcile",
		Interval:  interval,
		Timeout:   time.Minute,
		BatchSize: sweepBatchSize,
		Run: func(ctx context.Context) (int, error) {
			res, err := s.ReconcileStock(ctx)
			return res.Consumed + res.Compensated + res.Released, err
		},
	}
}

func (s *Service) maxAttempts() int {
	if s.cfg.Stock.MaxAttempts <= 0 {
		return 5
	}
	return s.cfg.Stock.MaxAttempts
}

// truncate caps msg at maxStockError bytes without splitting a rune.
func truncate(msg string) string {
	if len(msg) <= maxStockError {
		return msg
	}
	cut := maxStockError
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
