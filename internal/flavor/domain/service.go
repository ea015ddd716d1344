package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context) ([]MappingView, error)
	// Names lists the distinct flavor names, sorted.
	Names(ctx context.Context) ([]string, error)
	Create(ctx context.Context, req CreateRequest) (*MappingView, error)
	Update(ctx context.Context, req UpdateRequest) (*MappingView, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Resolve(ctx context.Context, name string) (*Mapping, error)
	// ResolveMany looks up several names at once; unknown names are absent
	// from the result.
	ResolveMany(ctx context.Context, names []string) (map[string]Mapping, error)
	EnsureDefault(ctx context.Context, tx *gorm.DB, ingredient *ingredientdomain.Ingredient) (bool, error)
}

type CreateRequest struct {
	FlavorName         string                 `json:"flavor_name" binding:"required,notblank"`
	IngredientID       snowflake.ID           `json:"ingredient_id" binding:"required"`
	QuantityPerServing *decimal.Decimal       `json:"quantity_per_serving,omitempty"`
	Unit               *ingredientdomain.Unit `json:"unit,omitempty"`
}

type UpdateRequest struct {
	ID                 snowflake.ID           `json:"-"`
	FlavorName         *string                `json:"flavor_name,omitempty"`
	IngredientID       *snowflake.ID          `json:"ingredient_id,omitempty"`
	QuantityPerServing *decimal.Decimal       `json:"quantity_per_serving,omitempty"`
	Unit               *ingredientdomain.Unit `json:"unit,omitempty"`
}

// DefaultQuantityPerServing applies when a mapping is created without one.
var DefaultQuantityPerServing = decimal.NewFromInt(25)

var (
	ErrNotFound           = errors.New("flavor_mapping_not_found")
	ErrInvalidID          = errors.New("invalid_flavor_mapping_id")
	ErrInvalidName        = errors.New("invalid_flavor_name")
	ErrDuplicateName      = errors.New("flavor_name_exists")
	ErrInvalidQuantity    = errors.New("invalid_quantity_per_serving")
	ErrInvalidUnit        = errors.New("invalid_flavor_unit")
	ErrIngredientNotFound = errors.New("flavor_ingredient_not_found")
)
