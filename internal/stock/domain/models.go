package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordConsumed   RecordStatus = "consumed"
	RecordRolledBack RecordStatus = "rolled_back"
)

// ConsumptionRecord tracks one order's claim on the ledger. It moves
// pending -> consumed -> rolled_back and never back.
type ConsumptionRecord struct {
	ID                       snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrderID                  string         `json:"order_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_consumption_records_order"`
	Status                   RecordStatus   `json:"status" gorm:"type:varchar(16);not null;index"`
	MenuNames                datatypes.JSON `json:"menu_names"`
	MenuSummary              string         `json:"menu_summary" gorm:"type:text"`
	TotalMenuItems           int            `json:"total_menu_items" gorm:"not null"`
	TotalIngredientsAffected int            `json:"total_ingredients_affected" gorm:"not null"`
	ConsumedAt               *time.Time     `json:"consumed_at,omitempty"`
	RolledBackAt             *time.Time     `json:"rolled_back_at,omitempty"`
	CreatedAt                time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt                time.Time      `json:"updated_at" gorm:"not null"`
}

func (ConsumptionRecord) TableName() string { return "consumption_records" }

// ConsumptionDetail is the amount one consume drew from one ingredient.
// QuantityRestored only grows and never exceeds QuantityConsumed.
type ConsumptionDetail struct {
	ID               snowflake.ID                   `json:"id" gorm:"primaryKey"`
	RecordID         snowflake.ID                   `json:"record_id" gorm:"not null;index"`
	OrderID          string                         `json:"order_id" gorm:"type:varchar(128);not null;index"`
	IngredientID     snowflake.ID                   `json:"ingredient_id" gorm:"not null"`
	IngredientName   string                         `json:"ingredient_name" gorm:"type:varchar(191);not null"`
	Unit             string                         `json:"unit" gorm:"type:varchar(16);not null"`
	QuantityConsumed decimal.Decimal                `json:"quantity_consumed" gorm:"type:decimal(20,4);not null"`
	QuantityRestored decimal.Decimal                `json:"quantity_restored" gorm:"type:decimal(20,4);not null"`
	StockBefore      decimal.Decimal                `json:"stock_before" gorm:"type:decimal(20,4);not null"`
	StockAfter       decimal.Decimal                `json:"stock_after" gorm:"type:decimal(20,4);not null"`
	Lines            datatypes.JSONSlice[LineShare] `json:"lines"`
	CreatedAt        time.Time                      `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time                      `json:"updated_at" gorm:"not null"`
}

func (ConsumptionDetail) TableName() string { return "consumption_details" }

// Remaining is what a rollback may still return to the ledger.
func (d ConsumptionDetail) Remaining() decimal.Decimal {
	remaining := d.QuantityConsumed.Sub(d.QuantityRestored)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// LineShare is the part of a detail one order line drew, kept so a scoped
// rollback returns what was taken even after the recipe changes.
type LineShare struct {
	MenuName         string          `json:"menu_name"`
	Preference       string          `json:"preference,omitempty"`
	PerServing       decimal.Decimal `json:"per_serving"`
	Servings         int             `json:"servings"`
	RestoredServings int             `json:"restored_servings"`
}

func (l LineShare) matches(item Item) bool {
	return strings.EqualFold(l.MenuName, item.MenuName) && strings.EqualFold(l.Preference, item.Preference)
}

// Outstanding is the number of servings not yet returned.
func (l LineShare) Outstanding() int {
	if l.RestoredServings >= l.Servings {
		return 0
	}
	return l.Servings - l.RestoredServings
}

// Release marks up to item.Quantity servings of the matching line as
// returned and reports the amount to restore.
func (d *ConsumptionDetail) Release(item Item) decimal.Decimal {
	amount := decimal.Zero
	want := item.Quantity
	for i := range d.Lines {
		line := &d.Lines[i]
		if want <= 0 {
			break
		}
		if !line.matches(item) {
			continue
		}
		n := line.Outstanding()
		if n > want {
			n = want
		}
		if n == 0 {
			continue
		}
		line.RestoredServings += n
		want -= n
		amount = amount.Add(line.PerServing.Mul(decimal.NewFromInt(int64(n))))
	}
	return amount
}

// ReleaseAll marks every line as returned.
func (d *ConsumptionDetail) ReleaseAll() {
	for i := range d.Lines {
		d.Lines[i].RestoredServings = d.Lines[i].Servings
	}
}
