package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() stockdomain.Repository {
	return &repo{}
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, orderID string) (*stockdomain.ConsumptionRecord, error) {
	return findRecord(db.WithContext(ctx), orderID)
}

func (r *repo) LockOrCreateRecord(ctx context.Context, tx *gorm.DB, record *stockdomain.ConsumptionRecord) (*stockdomain.ConsumptionRecord, error) {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	locked, err := r.LockRecord(ctx, tx, record.OrderID)
	if err != nil {
		return nil, err
	}
	if locked == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return locked, nil
}

func (r *repo) LockRecord(ctx context.Context, tx *gorm.DB, orderID string) (*stockdomain.ConsumptionRecord, error) {
	return findRecord(tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), orderID)
}

func (r *repo) SaveRecord(ctx context.Context, tx *gorm.DB, record *stockdomain.ConsumptionRecord) error {
	return tx.WithContext(ctx).Save(record).Error
}

func (r *repo) InsertDetails(ctx context.Context, tx *gorm.DB, details []stockdomain.ConsumptionDetail) error {
	if len(details) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&details).Error
}

func (r *repo) ListDetails(ctx context.Context, db *gorm.DB, recordID snowflake.ID) ([]stockdomain.ConsumptionDetail, error) {
	var details []stockdomain.ConsumptionDetail
	err := db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("ingredient_id ASC").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *repo) SaveDetail(ctx context.Context, tx *gorm.DB, detail *stockdomain.ConsumptionDetail) error {
	return tx.WithContext(ctx).Save(detail).Error
}

func findRecord(db *gorm.DB, orderID string) (*stockdomain.ConsumptionRecord, error) {
	var record stockdomain.ConsumptionRecord
	err := db.Where("order_id = ?", orderID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
