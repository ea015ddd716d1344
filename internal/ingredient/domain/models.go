package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryPackaging        Category = "packaging"
	CategoryIngredients      Category = "ingredients"
	CategoryCoffeeFlavors    Category = "coffee_flavors"
	CategorySquashFlavors    Category = "squash_flavors"
	CategoryMilkShakeFlavors Category = "milk_shake_flavors"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryPackaging, CategoryIngredients, CategoryCoffeeFlavors, CategorySquashFlavors, CategoryMilkShakeFlavors:
		return true
	}
	return false
}

type Unit string

const (
	UnitGram       Unit = "gram"
	UnitMilliliter Unit = "milliliter"
	UnitPiece      Unit = "piece"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitGram, UnitMilliliter, UnitPiece:
		return true
	}
	return false
}

// Ingredient is one stock-ledger row. Rows are hidden with is_available,
// never deleted.
type Ingredient struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name" gorm:"type:varchar(191);not null;uniqueIndex:ux_ingredients_name"`
	CurrentQuantity decimal.Decimal `json:"current_quantity" gorm:"type:decimal(20,4);not null"`
	MinimumQuantity decimal.Decimal `json:"minimum_quantity" gorm:"type:decimal(20,4);not null"`
	Category        Category        `json:"category" gorm:"type:varchar(32);not null"`
	Unit            Unit            `json:"unit" gorm:"type:varchar(16);not null"`
	IsAvailable     bool            `json:"is_available" gorm:"not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null"`
}

func (Ingredient) TableName() string { return "ingredients" }

// Usable reports whether the ingredient can be drawn from at all.
func (i Ingredient) Usable() bool {
	return i.IsAvailable && i.CurrentQuantity.IsPositive()
}

type Action string

const (
	ActionRestock         Action = "restock"
	ActionEditStock       Action = "edit_stock"
	ActionEditMinimum     Action = "edit_minimum"
	ActionConsume         Action = "consume"
	ActionRollback        Action = "rollback"
	ActionMakeAvailable   Action = "make_available"
	ActionMakeUnavailable Action = "make_unavailable"
)

func (a Action) Valid() bool {
	switch a {
	case ActionRestock, ActionEditStock, ActionEditMinimum, ActionConsume, ActionRollback, ActionMakeAvailable, ActionMakeUnavailable:
		return true
	}
	return false
}

// PerformedBySystem marks ledger movements made by order processing.
const PerformedBySystem = "SYSTEM"

// StockHistory is the append-only audit trail of the ledger.
type StockHistory struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	IngredientID    snowflake.ID    `json:"ingredient_id" gorm:"not null;index:idx_stock_histories_ingredient,priority:1"`
	IngredientName  string          `json:"ingredient_name" gorm:"type:varchar(191);not null"`
	ActionType      Action          `json:"action_type" gorm:"type:varchar(32);not null;index"`
	QuantityBefore  decimal.Decimal `json:"quantity_before" gorm:"type:decimal(20,4);not null"`
	QuantityAfter   decimal.Decimal `json:"quantity_after" gorm:"type:decimal(20,4);not null"`
	QuantityChanged decimal.Decimal `json:"quantity_changed" gorm:"type:decimal(20,4);not null"`
	PerformedBy     string          `json:"performed_by" gorm:"type:varchar(191);not null"`
	OrderID         *string         `json:"order_id,omitempty" gorm:"type:varchar(64);index"`
	Notes           *string         `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;index:idx_stock_histories_ingredient,priority:2"`
}

func (StockHistory) TableName() string { return "stock_histories" }

type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertLow      AlertLevel = "low"
	AlertOK       AlertLevel = "ok"
)

type Alert struct {
	ID      snowflake.ID    `json:"id"`
	Name    string          `json:"name"`
	Current decimal.Decimal `json:"current"`
	Minimum decimal.Decimal `json:"minimum"`
	Unit    Unit            `json:"unit"`
	Level   AlertLevel      `json:"status"`
}

type AlertSummary struct {
	Critical int `json:"critical"`
	Low      int `json:"low"`
	OK       int `json:"ok"`
}

type AlertReport struct {
	Message  string       `json:"message"`
	Summary  AlertSummary `json:"summary"`
	Critical []Alert      `json:"critical"`
	Low      []Alert      `json:"low"`
	OK       []Alert      `json:"ok"`
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

type HistoryFilter struct {
	IngredientID snowflake.ID
	ActionType   Action
	PerformedBy  string
	Limit        int
}

// NormalizedLimit clamps Limit into (0, MaxHistoryLimit].
func (f HistoryFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultHistoryLimit
	case f.Limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return f.Limit
}
