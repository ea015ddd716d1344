package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindRecord(ctx context.Context, db *gorm.DB, orderID string) (*ConsumptionRecord, error)
	// LockOrCreateRecord inserts record when no row exists for its order and
	// returns the row-locked current record.
	LockOrCreateRecord(ctx context.Context, tx *gorm.DB, record *ConsumptionRecord) (*ConsumptionRecord, error)
	LockRecord(ctx context.Context, tx *gorm.DB, orderID string) (*ConsumptionRecord, error)
	SaveRecord(ctx context.Context, tx *gorm.DB, record *ConsumptionRecord) error

	InsertDetails(ctx context.Context, tx *gorm.DB, details []ConsumptionDetail) error
	ListDetails(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]ConsumptionDetail, error)
	SaveDetail(ctx context.Context, tx *gorm.DB, detail *ConsumptionDetail) error
}
