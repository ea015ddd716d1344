package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
)

// Mapping ties a customer-facing flavor name to the ingredient drawn for
// one serving of it.
type Mapping struct {
	ID                 snowflake.ID          `json:"id" gorm:"primaryKey"`
	FlavorName         string                `json:"flavor_name" gorm:"type:varchar(191);not null;uniqueIndex:ux_flavor_mappings_name"`
	FlavorKey          string                `json:"flavor_key" gorm:"type:varchar(191);not null;uniqueIndex:ux_flavor_mappings_key"`
	IngredientID       snowflake.ID          `json:"ingredient_id" gorm:"not null;index"`
	QuantityPerServing decimal.Decimal       `json:"quantity_per_serving" gorm:"type:decimal(20,4);not null"`
	Unit               ingredientdomain.Unit `json:"unit" gorm:"type:varchar(16);not null"`
	CreatedAt          time.Time             `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time             `json:"updated_at" gorm:"not null"`
}

func (Mapping) TableName() string { return "flavor_mappings" }

// Key normalises a flavor name into its lookup key, so "Salted Caramel",
// "salted caramel" and "Salted-Caramel" resolve alike.
func Key(name string) string {
	return slug.Make(name)
}

// MappingView is a mapping with its ingredient's display name.
type MappingView struct {
	Mapping
	IngredientName string `json:"ingredient_name"`
}
