package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ingredient *Ingredient) error
	Save(ctx context.Context, db *gorm.DB, ingredient *Ingredient) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ingredient, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Ingredient, error)
	List(ctx context.Context, db *gorm.DB, includeUnavailable bool) ([]Ingredient, error)

	// LockByIDs row-locks the given ingredients in ascending id order and
	// returns the rows that exist, sorted by id.
	LockByIDs(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]Ingredient, error)
	UpdateQuantity(ctx context.Context, tx *gorm.DB, id snowflake.ID, quantity decimal.Decimal, at time.Time) error

	InsertHistory(ctx context.Context, db *gorm.DB, entries ...*StockHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, filter HistoryFilter) ([]StockHistory, error)
}
