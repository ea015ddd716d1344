package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orderID string) (*orderdomain.Order, error) {
	return findOrder(db.WithContext(ctx), "order_id = ?", orderID)
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*orderdomain.Order, error) {
	return findOrder(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "order_id = ?", orderID)
}

func (r *repo) FindByQueue(ctx context.Context, db *gorm.DB, queueDate string, queueNumber int) (*orderdomain.Order, error) {
	return findOrder(db.WithContext(ctx), "queue_date = ? AND queue_number = ?", queueDate, queueNumber)
}

func findOrder(db *gorm.DB, query string, args ...any) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where(query, args...).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListByDate(ctx context.Context, db *gorm.DB, queueDate string) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("queue_date = ?", queueDate).
		Order("queue_number ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repo) NextQueueNumber(ctx context.Context, tx *gorm.DB, queueDate string) (int, error) {
	var last sql.NullInt64
	err := tx.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("queue_date = ?", queueDate).
		Select("MAX(queue_number)").
		Row().
		Scan(&last)
	if err != nil {
		return 0, err
	}
	return int(last.Int64) + 1, nil
}

func (r *repo) SaveOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

func (r *repo) SaveItems(ctx context.Context, tx *gorm.DB, items []orderdomain.Item) error {
	for i := range items {
		if err := tx.WithContext(ctx).Save(&items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) TransitionStock(ctx context.Context, db *gorm.DB, orderID string, from []orderdomain.StockState, to orderdomain.StockState, at time.Time) (bool, error) {
	result := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("order_id = ? AND stock_state IN ?", orderID, from).
		Updates(map[string]any{
			"stock_state": to,
			"stock_error": nil,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) RecordStockAttempt(ctx context.Context, db *gorm.DB, orderID string, from []orderdomain.StockState, next orderdomain.StockState, message string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("order_id = ? AND stock_state IN ?", orderID, from).
		Updates(map[string]any{
			"stock_state":    next,
			"stock_attempts": gorm.Expr("stock_attempts + 1"),
			"stock_error":    message,
			"updated_at":     at,
		}).Error
}

func (r *repo) ListStockWork(ctx context.Context, db *gorm.DB, states []orderdomain.StockState, aborted bool, before time.Time, limit int) ([]orderdomain.Order, error) {
	aborts := []orderdomain.Status{orderdomain.StatusCancelled, orderdomain.StatusHabis}
	query := db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("stock_state IN ? AND updated_at <= ?", states, before)
	if aborted {
		query = query.Where("status IN ?", aborts)
	} else {
		query = query.Where("status NOT IN ?", aborts)
	}

	var orders []orderdomain.Order
	err := query.
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repo) ListUnreleasedItems(ctx context.Context, db *gorm.DB, orderID string, limit int) ([]orderdomain.Item, error) {
	var items []orderdomain.Item
	query := db.WithContext(ctx).
		Select("order_items.*").
		Joins("JOIN orders ON orders.order_id = order_items.order_id").
		Where("order_items.status = ? AND order_items.stock_released = ?", orderdomain.ItemCancelled, false).
		Where("orders.stock_state = ?", orderdomain.StockConsumed)
	if orderID != "" {
		query = query.Where("order_items.order_id = ?", orderID)
	}
	err := query.
		Order("order_items.id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) MarkItemReleased(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&orderdomain.Item{}).
		Where("id = ?", id).
		Update("stock_released", true).Error
}

func (r *repo) MarkUnsentReleased(ctx context.Context, db *gorm.DB, orderID string, sent []snowflake.ID) error {
	query := db.WithContext(ctx).
		Model(&orderdomain.Item{}).
		Where("order_id = ? AND status = ? AND stock_released = ?", orderID, orderdomain.ItemCancelled, false)
	if len(sent) > 0 {
		query = query.Where("id NOT IN ?", sent)
	}
	return query.Update("stock_released", true).Error
}

func (r *repo) CountStockStates(ctx context.Context, db *gorm.DB) (map[orderdomain.StockState]int64, error) {
	var rows []struct {
		StockState orderdomain.StockState
		Count      int64
	}
	err := db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Select("stock_state, COUNT(*) AS count").
		Group("stock_state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[orderdomain.StockState]int64, len(rows))
	for _, row := range rows {
		out[row.StockState] = row.Count
	}
	return out, nil
}

func (r *repo) InsertRoom(ctx context.Context, db *gorm.DB, room *orderdomain.Room) error {
	return db.WithContext(ctx).Create(room).Error
}

func (r *repo) SaveRoom(ctx context.Context, db *gorm.DB, room *orderdomain.Room) error {
	return db.WithContext(ctx).Save(room).Error
}

func (r *repo) FindRoomByName(ctx context.Context, db *gorm.DB, name string) (*orderdomain.Room, error) {
	return findRoom(db.WithContext(ctx), "name = ?", name)
}

func (r *repo) FindRoomByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Room, error) {
	return findRoom(db.WithContext(ctx), "id = ?", id)
}

func findRoom(db *gorm.DB, query string, args ...any) (*orderdomain.Room, error) {
	var room orderdomain.Room
	if err := db.Where(query, args...).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *repo) ListActiveRooms(ctx context.Context, db *gorm.DB) ([]orderdomain.Room, error) {
	var rooms []orderdomain.Room
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&rooms).Error
	return rooms, err
}
