package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	// CheckAndConsume evaluates the request against the ledger and, when
	// consume is set, deducts it. Rejections are reported in the result,
	// not as errors.
	CheckAndConsume(ctx context.Context, req Request, consume bool) (*Result, error)
	Rollback(ctx context.Context, orderID string) (*RollbackResult, error)
	// RollbackItems returns the share of a consumed order that belongs to
	// the given items.
	RollbackItems(ctx context.Context, orderID string, items []Item) (*RollbackResult, error)
	Consumption(ctx context.Context, orderID string) (*ConsumptionView, error)
}

type Request struct {
	OrderID string `json:"order_id" binding:"required,notblank"`
	Items   []Item `json:"items" binding:"required,min=1,dive"`
}

type ShortageKind string

const (
	ShortageUnavailable  ShortageKind = "unavailable"
	ShortageNotFound     ShortageKind = "not_found"
	ShortageOutOfStock   ShortageKind = "out_of_stock"
	ShortageInsufficient ShortageKind = "insufficient"
)

// Hard reports whether the shortage rejects the batch without suggestions.
func (k ShortageKind) Hard() bool {
	return k != ShortageInsufficient
}

type Shortage struct {
	IngredientID   snowflake.ID    `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Required       decimal.Decimal `json:"required"`
	Available      decimal.Decimal `json:"available"`
	Unit           string          `json:"unit"`
	Menus          []string        `json:"menus"`
	Kind           ShortageKind    `json:"status"`
}

type Suggestion struct {
	MenuName   string `json:"menu_name"`
	Preference string `json:"preference,omitempty"`
	Requested  int    `json:"requested"`
	CanMake    int    `json:"can_make"`
}

type MenuDetail struct {
	MenuName     string `json:"menu_name"`
	Preference   string `json:"preference,omitempty"`
	RecipeCount  int    `json:"recipe_count"`
	RequestedQty int    `json:"requested_qty"`
}

type Result struct {
	OrderID            string              `json:"order_id"`
	CanFulfill         bool                `json:"can_fulfill"`
	Consumed           bool                `json:"consumed"`
	AlreadyConsumed    bool                `json:"already_consumed"`
	Message            string              `json:"message"`
	Shortages          []Shortage          `json:"shortages"`
	PartialSuggestions []Suggestion        `json:"partial_suggestions"`
	Details            []MenuDetail        `json:"details"`
	Ingredients        []ConsumptionDetail `json:"ingredients,omitempty"`
}

type RollbackResult struct {
	OrderID             string              `json:"order_id"`
	AlreadyRolledBack   bool                `json:"already_rolled_back"`
	RecordStatus        RecordStatus        `json:"record_status"`
	RestoredIngredients int                 `json:"restored_ingredients"`
	Restored            []RestoredLine      `json:"restored"`
	Details             []ConsumptionDetail `json:"-"`
}

type RestoredLine struct {
	IngredientID   snowflake.ID    `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	Before         decimal.Decimal `json:"before"`
	After          decimal.Decimal `json:"after"`
}

type ConsumptionView struct {
	Record  ConsumptionRecord   `json:"record"`
	Details []ConsumptionDetail `json:"details"`
}

var (
	ErrInvalidOrderID   = errors.New("invalid_order_id")
	ErrEmptyItems       = errors.New("empty_items")
	ErrInvalidItem      = errors.New("invalid_item")
	ErrNoRecipe         = errors.New("menu_has_no_recipe")
	ErrUnknownFlavor    = errors.New("unknown_flavor")
	ErrRecordRolledBack = errors.New("consumption_rolled_back")
	ErrNotConsumed      = errors.New("consumption_not_found")
	ErrNegativeStock    = errors.New("negative_stock")
)

// ValidationError names the inputs that could not be resolved and, when
// known, the accepted alternatives.
type ValidationError struct {
	Err     error
	Invalid []string
	Options []string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Err, strings.Join(e.Invalid, ", "))
	if len(e.Options) > 0 {
		msg += " (valid: " + strings.Join(e.Options, ", ") + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }
