package repository

import (
	"context"
	"errors"
	"time"

	kitchendomain "github.com/smallbiznis/pantry/internal/kitchen/domain"
	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	activeStatuses   = []orderdomain.Status{orderdomain.StatusReceive, orderdomain.StatusMaking, orderdomain.StatusDeliver}
	terminalStatuses = []orderdomain.Status{orderdomain.StatusDone, orderdomain.StatusCancelled, orderdomain.StatusHabis}
)

type repo struct{}

func Provide() kitchendomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, order *kitchendomain.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *repo) Save(ctx context.Context, tx *gorm.DB, order *kitchendomain.Order) error {
	return tx.WithContext(ctx).Save(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orderID string) (*kitchendomain.Order, error) {
	return findOrder(db.WithContext(ctx), orderID)
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*kitchendomain.Order, error) {
	return findOrder(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func findOrder(db *gorm.DB, orderID string) (*kitchendomain.Order, error) {
	var order kitchendomain.Order
	if err := db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repo) ListDisplay(ctx context.Context, db *gorm.DB, from, to time.Time) ([]kitchendomain.Order, error) {
	var orders []kitchendomain.Order
	err := db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Or("status IN ? AND time_receive >= ? AND time_receive < ?", terminalStatuses, from, to).
		Order("time_receive ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]kitchendomain.Order, error) {
	var orders []kitchendomain.Order
	err := db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("time_receive ASC").
		Find(&orders).Error
	return orders, err
}

func (r *repo) GetState(ctx context.Context, db *gorm.DB) (*kitchendomain.State, error) {
	var state kitchendomain.State
	err := db.WithContext(ctx).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *repo) SaveState(ctx context.Context, db *gorm.DB, state *kitchendomain.State) error {
	return db.WithContext(ctx).Save(state).Error
}
