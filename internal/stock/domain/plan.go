package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Item is one order line as the stock engine sees it.
type Item struct {
	MenuName   string `json:"menu_name" binding:"required,notblank"`
	Quantity   int    `json:"quantity" binding:"required,min=1"`
	Preference string `json:"preference,omitempty"`
}

// Label names the item in shortage reports, "Latte (Vanilla)".
func (i Item) Label() string {
	if i.Preference == "" {
		return i.MenuName
	}
	return i.MenuName + " (" + i.Preference + ")"
}

// Requirement is the batch total needed from one ingredient.
type Requirement struct {
	IngredientID snowflake.ID    `json:"ingredient_id"`
	Unit         string          `json:"unit"`
	Required     decimal.Decimal `json:"required"`
	Menus        []string        `json:"menus"`
}

// PlannedItem keeps what a single serving of an item draws per ingredient.
type PlannedItem struct {
	Item
	RecipeCount int
	PerServing  map[snowflake.ID]decimal.Decimal
}

// Plan is the resolved requirement set of a batch. Requirements are sorted
// by ingredient id.
type Plan struct {
	Requirements []Requirement
	Items        []PlannedItem
}

func (p *Plan) IngredientIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(p.Requirements))
	for _, req := range p.Requirements {
		ids = append(ids, req.IngredientID)
	}
	return ids
}
