package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() flavordomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, mapping *flavordomain.Mapping) error {
	return db.WithContext(ctx).Create(mapping).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, mapping *flavordomain.Mapping) error {
	return db.WithContext(ctx).Save(mapping).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&flavordomain.Mapping{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return flavordomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*flavordomain.Mapping, error) {
	var mapping flavordomain.Mapping
	err := db.WithContext(ctx).Where("id = ?", id).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*flavordomain.Mapping, error) {
	var mapping flavordomain.Mapping
	err := db.WithContext(ctx).Where("flavor_key = ?", key).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (r *repo) FindByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]flavordomain.Mapping, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var items []flavordomain.Mapping
	if err := db.WithContext(ctx).Where("flavor_key IN ?", keys).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]flavordomain.MappingView, error) {
	var items []flavordomain.MappingView
	err := db.WithContext(ctx).
		Table("flavor_mappings AS f").
		Select("f.*, COALESCE(i.name, ?) AS ingredient_name", "Unknown").
		Joins("LEFT JOIN ingredients i ON i.id = f.ingredient_id").
		Order("f.flavor_name ASC").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
