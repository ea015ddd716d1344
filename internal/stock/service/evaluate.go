package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
)

const shortageMessageLimit = 3

type evaluation struct {
	shortages   []stockdomain.Shortage
	suggestions []stockdomain.Suggestion
	message     string
}

func (e evaluation) ok() bool { return len(e.shortages) == 0 }

// evaluate classifies every requirement against the locked rows. Any hard
// shortage rejects the batch outright; otherwise insufficient rows reject
// it with per-item partial suggestions.
func evaluate(plan *stockdomain.Plan, rows map[snowflake.ID]ingredientdomain.Ingredient) evaluation {
	var hard, short []stockdomain.Shortage

	for _, req := range plan.Requirements {
		shortage := stockdomain.Shortage{
			IngredientID: req.IngredientID,
			Required:     req.Required,
			Available:    decimal.Zero,
			Unit:         req.Unit,
			Menus:        req.Menus,
		}
		row, found := rows[req.IngredientID]
		switch {
		case !found:
			shortage.IngredientName = fmt.Sprintf("ID-%s", req.IngredientID)
			shortage.Kind = stockdomain.ShortageNotFound
			hard = append(hard, shortage)
		case !row.IsAvailable:
			shortage.IngredientName = row.Name
			shortage.Kind = stockdomain.ShortageUnavailable
			hard = append(hard, shortage)
		case !row.CurrentQuantity.IsPositive():
			shortage.IngredientName = row.Name
			shortage.Kind = stockdomain.ShortageOutOfStock
			hard = append(hard, shortage)
		case row.CurrentQuantity.LessThan(req.Required):
			shortage.IngredientName = row.Name
			shortage.Available = row.CurrentQuantity
			shortage.Kind = stockdomain.ShortageInsufficient
			short = append(short, shortage)
		}
	}

	if len(hard) > 0 {
		names := make([]string, 0, len(hard))
		for _, s := range hard {
			names = append(names, s.IngredientName)
		}
		return evaluation{
			shortages: append(hard, short...),
			message:   "Order rejected: out of stock for " + strings.Join(names, ", "),
		}
	}
	if len(short) > 0 {
		return evaluation{
			shortages:   short,
			suggestions: suggest(plan, rows),
			message:     shortageMessage(short),
		}
	}
	return evaluation{}
}

// suggest computes, per item, how many servings the current stock allows:
// floor(min over its ingredients of available / per-serving need). Items
// that could be made in full are omitted.
func suggest(plan *stockdomain.Plan, rows map[snowflake.ID]ingredientdomain.Ingredient) []stockdomain.Suggestion {
	out := []stockdomain.Suggestion{}
	for _, item := range plan.Items {
		if len(item.PerServing) == 0 {
			continue
		}
		canMake := maxServings(item.PerServing, rows)
		if canMake < int64(item.Quantity) {
			out = append(out, stockdomain.Suggestion{
				MenuName:   item.MenuName,
				Preference: item.Preference,
				Requested:  item.Quantity,
				CanMake:    int(canMake),
			})
		}
	}
	return out
}

func maxServings(perServing map[snowflake.ID]decimal.Decimal, rows map[snowflake.ID]ingredientdomain.Ingredient) int64 {
	ids := make([]snowflake.ID, 0, len(perServing))
	for id := range perServing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	best := int64(-1)
	for _, id := range ids {
		need := perServing[id]
		row, ok := rows[id]
		if !ok || !row.Usable() || !need.IsPositive() {
			return 0
		}
		possible := row.CurrentQuantity.Div(need).Floor().IntPart()
		if best < 0 || possible < best {
			best = possible
		}
		if best == 0 {
			return 0
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func shortageMessage(short []stockdomain.Shortage) string {
	parts := make([]string, 0, shortageMessageLimit)
	for i, s := range short {
		if i == shortageMessageLimit {
			break
		}
		parts = append(parts, fmt.Sprintf("%s: need %s %s, available %s %s",
			s.IngredientName, s.Required.String(), s.Unit, s.Available.String(), s.Unit))
	}
	msg := "Insufficient stock. Shortages: " + strings.Join(parts, "; ")
	if extra := len(short) - shortageMessageLimit; extra > 0 {
		msg += fmt.Sprintf(" and %d more", extra)
	}
	return msg
}
