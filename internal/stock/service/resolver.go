package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/config"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	"github.com/smallbiznis/pantry/internal/menu"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
)

// Resolver turns order items into per-ingredient requirements from base
// recipes plus flavor mappings.
type Resolver struct {
	menu    menu.Client
	flavors flavordomain.Service
	rules   *config.ServingRulesHolder
}

func NewResolver(menuClient menu.Client, flavors flavordomain.Service, rules *config.ServingRulesHolder) *Resolver {
	return &Resolver{menu: menuClient, flavors: flavors, rules: rules}
}

func (r *Resolver) Resolve(ctx context.Context, items []stockdomain.Item) (*stockdomain.Plan, error) {
	names := uniqueMenuNames(items)
	recipes, err := r.menu.Recipes(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("fetch recipes: %w", err)
	}

	var noRecipe []string
	for _, name := range names {
		if len(recipes[name]) == 0 {
			noRecipe = append(noRecipe, name)
		}
	}
	if len(noRecipe) > 0 {
		return nil, &stockdomain.ValidationError{Err: stockdomain.ErrNoRecipe, Invalid: noRecipe}
	}

	mappings, err := r.resolveFlavors(ctx, items)
	if err != nil {
		return nil, err
	}

	rules := r.rules.Get()
	agg := newAggregator()
	plan := &stockdomain.Plan{Items: make([]stockdomain.PlannedItem, 0, len(items))}

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		lines := recipes[item.MenuName]
		planned := stockdomain.PlannedItem{
			Item:        item,
			RecipeCount: len(lines),
			PerServing:  make(map[snowflake.ID]decimal.Decimal, len(lines)+1),
		}

		for _, line := range lines {
			planned.PerServing[line.IngredientID] = planned.PerServing[line.IngredientID].Add(line.Quantity)
			agg.add(line.IngredientID, line.Unit, line.Quantity.Mul(qty), item.MenuName)
		}

		if item.Preference != "" {
			mapping := mappings[item.Preference]
			perServing := flavordomain.AdjustServing(rules, item.MenuName, mapping.QuantityPerServing, mapping.Unit)
			planned.PerServing[mapping.IngredientID] = planned.PerServing[mapping.IngredientID].Add(perServing)
			agg.add(mapping.IngredientID, string(mapping.Unit), perServing.Mul(qty), item.Label())
		}

		plan.Items = append(plan.Items, planned)
	}

	plan.Requirements = agg.sorted()
	return plan, nil
}

func (r *Resolver) resolveFlavors(ctx context.Context, items []stockdomain.Item) (map[string]flavordomain.Mapping, error) {
	var prefs []string
	seen := make(map[string]struct{})
	for _, item := range items {
		if item.Preference == "" {
			continue
		}
		if _, ok := seen[item.Preference]; ok {
			continue
		}
		seen[item.Preference] = struct{}{}
		prefs = append(prefs, item.Preference)
	}
	if len(prefs) == 0 {
		return nil, nil
	}

	mappings, err := r.flavors.ResolveMany(ctx, prefs)
	if err != nil {
		return nil, fmt.Errorf("resolve flavors: %w", err)
	}

	var unknown []string
	for _, pref := range prefs {
		if _, ok := mappings[pref]; !ok {
			unknown = append(unknown, pref)
		}
	}
	if len(unknown) > 0 {
		options, err := r.flavors.Names(ctx)
		if err != nil {
			return nil, err
		}
		return nil, &stockdomain.ValidationError{Err: stockdomain.ErrUnknownFlavor, Invalid: unknown, Options: options}
	}
	return mappings, nil
}

type aggregator struct {
	byID map[snowflake.ID]*stockdomain.Requirement
	seen map[snowflake.ID]map[string]struct{}
}

func newAggregator() *aggregator {
	return &aggregator{
		byID: make(map[snowflake.ID]*stockdomain.Requirement),
		seen: make(map[snowflake.ID]map[string]struct{}),
	}
}

func (a *aggregator) add(id snowflake.ID, unit string, qty decimal.Decimal, label string) {
	req, ok := a.byID[id]
	if !ok {
		req = &stockdomain.Requirement{IngredientID: id, Unit: unit}
		a.byID[id] = req
		a.seen[id] = make(map[string]struct{})
	}
	req.Required = req.Required.Add(qty)
	if _, dup := a.seen[id][label]; !dup {
		a.seen[id][label] = struct{}{}
		req.Menus = append(req.Menus, label)
	}
}

func (a *aggregator) sorted() []stockdomain.Requirement {
	out := make([]stockdomain.Requirement, 0, len(a.byID))
	for _, req := range a.byID {
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngredientID < out[j].IngredientID })
	return out
}

func uniqueMenuNames(items []stockdomain.Item) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.MenuName)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
