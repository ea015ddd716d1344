package domain

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/config"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
)

// AdjustServing applies the menu-family serving rules to a flavor's
// per-serving quantity. Families are checked in order: blended drinks
// (gram floor), light drinks (milliliter cap), premium drinks (milliliter
// multiplier). Only the first matching family applies.
func AdjustServing(rules config.ServingRules, menuName string, quantity decimal.Decimal, unit ingredientdomain.Unit) decimal.Decimal {
	name := strings.ToLower(menuName)

	switch {
	case containsAny(name, rules.BlendedKeywords):
		if unit == ingredientdomain.UnitGram {
			return decimal.Max(quantity, decimal.NewFromFloat(rules.BlendedMinGrams))
		}
	case containsAny(name, rules.LightKeywords):
		if unit == ingredientdomain.UnitMilliliter {
			return decimal.Min(quantity, decimal.NewFromFloat(rules.LightMaxMl))
		}
	case containsAny(name, rules.PremiumKeywords):
		if unit == ingredientdomain.UnitMilliliter {
			return quantity.Mul(decimal.NewFromFloat(rules.PremiumMultiplier))
		}
	}
	return quantity
}

// DefaultServing is the per-serving quantity of an auto-derived mapping.
// ok is false for ingredients that never get one.
func DefaultServing(rules config.ServingRules, ingredient ingredientdomain.Ingredient) (decimal.Decimal, bool) {
	if ingredient.Category != ingredientdomain.CategoryIngredients {
		return decimal.Zero, false
	}
	switch ingredient.Unit {
	case ingredientdomain.UnitMilliliter:
		return decimal.NewFromFloat(rules.DefaultMlPerServing), true
	case ingredientdomain.UnitGram:
		return decimal.NewFromFloat(rules.DefaultGramPerServing), true
	}
	return decimal.Zero, false
}

func containsAny(name string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}
