package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, mapping *Mapping) error
	Save(ctx context.Context, db *gorm.DB, mapping *Mapping) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Mapping, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*Mapping, error)
	FindByKeys(ctx context.Context, db *gorm.DB, keys []string) ([]Mapping, error)
	List(ctx context.Context, db *gorm.DB) ([]MappingView, error)
}
