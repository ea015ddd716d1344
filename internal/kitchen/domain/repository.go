package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, order *Order) error
	Save(ctx context.Context, tx *gorm.DB, order *Order) error
	// FindByID returns nil when the order is not mirrored.
	FindByID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)
	LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*Order, error)
	// ListDisplay returns active orders plus terminal orders received in
	// [from, to), oldest first.
	ListDisplay(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Order, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Order, error)

	GetState(ctx context.Context, db *gorm.DB) (*State, error)
	SaveState(ctx context.Context, db *gorm.DB, state *State) error
}
