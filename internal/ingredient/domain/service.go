package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context, includeUnavailable bool) ([]Ingredient, error)
	Get(ctx context.Context, id snowflake.ID) (*Ingredient, error)
	Add(ctx context.Context, req AddRequest) (*Ingredient, error)
	Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error)
	SetAvailability(ctx context.Context, req AvailabilityRequest) (*AvailabilityResult, error)
	Restock(ctx context.Context, req RestockRequest) (*AdjustmentResult, error)
	SetMinimum(ctx context.Context, req MinimumRequest) (*AdjustmentResult, error)
	Alerts(ctx context.Context) (*AlertReport, error)
	History(ctx context.Context, filter HistoryFilter) ([]StockHistory, error)
}

// FlavorDefaulter derives a flavor mapping for a newly added ingredient
// inside the same transaction.
type FlavorDefaulter interface {
	EnsureDefault(ctx context.Context, tx *gorm.DB, ingredient *Ingredient) (bool, error)
}

type AddRequest struct {
	Name            string          `json:"name" binding:"required,notblank"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity"`
	Category        Category        `json:"category" binding:"required"`
	Unit            Unit            `json:"unit" binding:"required"`
	PerformedBy     string          `json:"-"`
}

type UpdateRequest struct {
	ID              snowflake.ID     `json:"id"`
	Name            *string          `json:"name,omitempty"`
	CurrentQuantity *decimal.Decimal `json:"current_quantity,omitempty"`
	MinimumQuantity *decimal.Decimal `json:"minimum_quantity,omitempty"`
	Category        *Category        `json:"category,omitempty"`
	Unit            *Unit            `json:"unit,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	PerformedBy     string           `json:"-"`
}

type UpdateResult struct {
	Ingredient      *Ingredient `json:"ingredient"`
	NameChanged     bool        `json:"name_changed"`
	QuantityChanged bool        `json:"quantity_changed"`
	MinimumChanged  bool        `json:"minimum_changed"`
}

type AvailabilityRequest struct {
	ID          snowflake.ID
	Available   bool
	PerformedBy string
}

type AvailabilityResult struct {
	Ingredient *Ingredient `json:"ingredient"`
	Previous   bool        `json:"old_availability"`
	Changed    bool        `json:"changed"`
}

type RestockRequest struct {
	IngredientID snowflake.ID    `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"add_quantity"`
	Notes        string          `json:"notes,omitempty"`
	PerformedBy  string          `json:"-"`
}

type MinimumRequest struct {
	IngredientID snowflake.ID    `json:"ingredient_id"`
	Minimum      decimal.Decimal `json:"new_minimum"`
	Notes        string          `json:"notes,omitempty"`
	PerformedBy  string          `json:"-"`
}

type AdjustmentResult struct {
	Ingredient *Ingredient     `json:"ingredient"`
	Before     decimal.Decimal `json:"before"`
	After      decimal.Decimal `json:"after"`
	History    *StockHistory   `json:"history"`
}

// Outbox event types emitted to the menu service.
const (
	EventIngredientAdded           = "ingredient_added"
	EventIngredientUpdated         = "ingredient_updated"
	EventIngredientMadeAvailable   = "ingredient_made_available"
	EventIngredientMadeUnavailable = "ingredient_made_unavailable"
)

// DefaultPerformer is recorded when a request carries no operator name.
const DefaultPerformer = "admin"

var (
	ErrNotFound        = errors.New("ingredient_not_found")
	ErrInvalidID       = errors.New("invalid_ingredient_id")
	ErrInvalidName     = errors.New("invalid_ingredient_name")
	ErrDuplicateName   = errors.New("ingredient_name_exists")
	ErrInvalidCategory = errors.New("invalid_ingredient_category")
	ErrInvalidUnit     = errors.New("invalid_ingredient_unit")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidAction   = errors.New("invalid_action_type")
)
