package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/config"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"github.com/smallbiznis/pantry/internal/menu"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	"github.com/smallbiznis/pantry/internal/observability/metrics"
	stockdomain "github.com/smallbiznis/pantry/internal/stock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const menuSummaryLimit = 5

// errRejected rolls back a transaction whose evaluation failed.
var errRejected = errors.New("stock rejected")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        stockdomain.Repository
	Ingredients ingredientdomain.Repository
	Menu        menu.Client
	Flavors     flavordomain.Service
	Rules       *config.ServingRulesHolder `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        stockdomain.Repository
	ingredients ingredientdomain.Repository
	resolver    *Resolver
	metrics     *metrics.Metrics
}

func New(p Params) stockdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("stock.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		ingredients: p.Ingredients,
		resolver:    NewResolver(p.Menu, p.Flavors, p.Rules),
		metrics:     p.Metrics,
	}
}

func (s *Service) CheckAndConsume(ctx context.Context, req stockdomain.Request, consume bool) (*stockdomain.Result, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), req.OrderID)

	existing, err := s.repo.FindRecord(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == stockdomain.RecordConsumed {
		s.record(ctx, consume, "already_consumed")
		return alreadyConsumed(existing), nil
	}
	if consume && existing != nil && existing.Status == stockdomain.RecordRolledBack {
		return nil, stockdomain.ErrRecordRolledBack
	}

	plan, err := s.resolver.Resolve(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	result := &stockdomain.Result{
		OrderID:            req.OrderID,
		Shortages:          []stockdomain.Shortage{},
		PartialSuggestions: []stockdomain.Suggestion{},
		Details:            menuDetails(plan),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.lockRecord(ctx, tx, req, existing)
		if err != nil {
			return err
		}
		if record != nil {
			switch record.Status {
			case stockdomain.RecordConsumed:
				*result = *alreadyConsumed(record)
				return nil
			case stockdomain.RecordRolledBack:
				if consume {
					return stockdomain.ErrRecordRolledBack
				}
			}
		}

		rows, err := s.lockIngredients(ctx, tx, plan.IngredientIDs())
		if err != nil {
			return err
		}

		eval := evaluate(plan, rows)
		if !eval.ok() {
			result.Shortages = eval.shortages
			result.PartialSuggestions = eval.suggestions
			result.Message = eval.message
			return errRejected
		}

		result.CanFulfill = true
		if !consume {
			result.Message = "Stock available for all items"
			return nil
		}

		details, err := s.deduct(ctx, tx, record, plan, rows)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		fillRecord(record, req.Items)
		record.Status = stockdomain.RecordConsumed
		record.ConsumedAt = &now
		record.TotalIngredientsAffected = len(details)
		record.UpdatedAt = now
		if err := s.repo.SaveRecord(ctx, tx, record); err != nil {
			return err
		}

		result.Consumed = true
		result.Ingredients = details
		result.Message = "Stock consumed"
		return nil
	})

	switch {
	case errors.Is(err, errRejected):
		s.record(ctx, consume, "rejected")
		log.Info("stock rejected",
			zap.Bool("consume", consume),
			zap.Int("shortages", len(result.Shortages)),
			zap.String("reason", result.Message),
		)
		return result, nil
	case err != nil:
		s.record(ctx, consume, "error")
		return nil, err
	}

	switch {
	case result.AlreadyConsumed:
		s.record(ctx, consume, "already_consumed")
	case result.Consumed:
		s.record(ctx, consume, "consumed")
		log.Info("stock consumed", zap.Int("ingredients", len(result.Ingredients)))
	default:
		s.record(ctx, consume, "available")
	}
	return result, nil
}

// lockRecord returns the row-locked record. Check and consume both create a
// pending row when none exists; a failed evaluation rolls it back.
func (s *Service) lockRecord(ctx context.Context, tx *gorm.DB, req stockdomain.Request, existing *stockdomain.ConsumptionRecord) (*stockdomain.ConsumptionRecord, error) {
	if existing != nil {
		record, err := s.repo.LockRecord(ctx, tx, req.OrderID)
		if err != nil || record != nil {
			return record, err
		}
	}

	now := s.clock.Now()
	record := &stockdomain.ConsumptionRecord{
		ID:        s.genID.Generate(),
		OrderID:   req.OrderID,
		Status:    stockdomain.RecordPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	fillRecord(record, req.Items)
	return s.repo.LockOrCreateRecord(ctx, tx, record)
}

func (s *Service) lockIngredients(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]ingredientdomain.Ingredient, error) {
	items, err := s.ingredients.LockByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	rows := make(map[snowflake.ID]ingredientdomain.Ingredient, len(items))
	for _, item := range items {
		rows[item.ID] = item
	}
	return rows, nil
}

// deduct writes the new quantities, consume history and details. A
// negative result aborts the whole transaction.
func (s *Service) deduct(ctx context.Context, tx *gorm.DB, record *stockdomain.ConsumptionRecord, plan *stockdomain.Plan, rows map[snowflake.ID]ingredientdomain.Ingredient) ([]stockdomain.ConsumptionDetail, error) {
	now := s.clock.Now()
	orderID := record.OrderID
	notes := "Consumed for order " + orderID

	shares := lineShares(plan)
	details := make([]stockdomain.ConsumptionDetail, 0, len(plan.Requirements))
	history := make([]*ingredientdomain.StockHistory, 0, len(plan.Requirements))

	for _, req := range plan.Requirements {
		row := rows[req.IngredientID]
		before := row.CurrentQuantity
		after := before.Sub(req.Required)
		if after.IsNegative() {
			return nil, fmt.Errorf("%w: %s would drop to %s", stockdomain.ErrNegativeStock, row.Name, after.String())
		}
		if err := s.ingredients.UpdateQuantity(ctx, tx, row.ID, after, now); err != nil {
			return nil, err
		}

		history = append(history, &ingredientdomain.StockHistory{
			ID:              s.genID.Generate(),
			IngredientID:    row.ID,
			IngredientName:  row.Name,
			ActionType:      ingredientdomain.ActionConsume,
			QuantityBefore:  before,
			QuantityAfter:   after,
			QuantityChanged: after.Sub(before),
			PerformedBy:     ingredientdomain.PerformedBySystem,
			OrderID:         &orderID,
			Notes:           &notes,
			CreatedAt:       now,
		})
		details = append(details, stockdomain.ConsumptionDetail{
			ID:               s.genID.Generate(),
			RecordID:         record.ID,
			OrderID:          orderID,
			IngredientID:     row.ID,
			IngredientName:   row.Name,
			Unit:             req.Unit,
			QuantityConsumed: req.Required,
			QuantityRestored: decimal.Zero,
			StockBefore:      before,
			StockAfter:       after,
			Lines:            shares[row.ID],
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	if err := s.ingredients.InsertHistory(ctx, tx, history...); err != nil {
		return nil, err
	}
	if err := s.repo.InsertDetails(ctx, tx, details); err != nil {
		return nil, err
	}
	return details, nil
}

func (s *Service) Rollback(ctx context.Context, orderID string) (*stockdomain.RollbackResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, stockdomain.ErrInvalidOrderID
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID)

	result := &stockdomain.RollbackResult{OrderID: orderID, Restored: []stockdomain.RestoredLine{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, details, err := s.lockConsumed(ctx, tx, orderID, result)
		if err != nil || record == nil {
			return err
		}

		release := func(d *stockdomain.ConsumptionDetail) decimal.Decimal {
			d.ReleaseAll()
			return d.Remaining()
		}
		return s.restore(ctx, tx, record, details, release, "Rollback for order "+orderID, result)
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyRolledBack {
		s.metrics.RecordStockRollback(ctx, "order")
		log.Info("stock rolled back", zap.Int("restored_ingredients", result.RestoredIngredients))
	}
	return result, nil
}

func (s *Service) RollbackItems(ctx context.Context, orderID string, items []stockdomain.Item) (*stockdomain.RollbackResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, stockdomain.ErrInvalidOrderID
	}
	req, err := normalizeRequest(stockdomain.Request{OrderID: orderID, Items: items})
	if err != nil {
		return nil, err
	}
	log := logger.WithOrder(logger.WithContext(ctx, s.log), orderID)

	result := &stockdomain.RollbackResult{OrderID: orderID, Restored: []stockdomain.RestoredLine{}}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, details, err := s.lockConsumed(ctx, tx, orderID, result)
		if err != nil || record == nil {
			return err
		}

		release := func(d *stockdomain.ConsumptionDetail) decimal.Decimal {
			amount := decimal.Zero
			for _, item := range req.Items {
				amount = amount.Add(d.Release(item))
			}
			return amount
		}
		labels := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			labels = append(labels, fmt.Sprintf("%dx %s", item.Quantity, item.Label()))
		}
		notes := fmt.Sprintf("Item rollback for order %s: %s", orderID, strings.Join(labels, ", "))
		return s.restore(ctx, tx, record, details, release, notes, result)
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyRolledBack {
		s.metrics.RecordStockRollback(ctx, "items")
		log.Info("stock partially rolled back",
			zap.Int("restored_ingredients", result.RestoredIngredients),
			zap.String("record_status", string(result.RecordStatus)),
		)
	}
	return result, nil
}

// lockConsumed locks the record and its ingredients for a rollback. A nil
// record with nil error means the rollback already happened.
func (s *Service) lockConsumed(ctx context.Context, tx *gorm.DB, orderID string, result *stockdomain.RollbackResult) (*stockdomain.ConsumptionRecord, []stockdomain.ConsumptionDetail, error) {
	record, err := s.repo.LockRecord(ctx, tx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, stockdomain.ErrNotConsumed
	}
	result.RecordStatus = record.Status
	switch record.Status {
	case stockdomain.RecordRolledBack:
		result.AlreadyRolledBack = true
		return nil, nil, nil
	case stockdomain.RecordPending:
		return nil, nil, stockdomain.ErrNotConsumed
	}

	details, err := s.repo.ListDetails(ctx, tx, record.ID)
	if err != nil {
		return nil, nil, err
	}
	return record, details, nil
}

// restore returns min(release(d), remaining) per detail, sorted by
// ingredient id, and closes the record once nothing remains.
func (s *Service) restore(ctx context.Context, tx *gorm.DB, record *stockdomain.ConsumptionRecord, details []stockdomain.ConsumptionDetail, release func(*stockdomain.ConsumptionDetail) decimal.Decimal, notes string, result *stockdomain.RollbackResult) error {
	ids := make([]snowflake.ID, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.IngredientID)
	}
	rows, err := s.lockIngredients(ctx, tx, ids)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	orderID := record.OrderID
	var history []*ingredientdomain.StockHistory

	for i := range details {
		d := &details[i]
		amount := decimal.Min(release(d), d.Remaining())
		if !amount.IsPositive() {
			continue
		}
		row, ok := rows[d.IngredientID]
		if !ok {
			s.log.Warn("rollback skipped missing ingredient",
				zap.String("order_id", orderID),
				zap.String("ingredient_id", d.IngredientID.String()),
			)
			continue
		}

		before := row.CurrentQuantity
		after := before.Add(amount)
		if err := s.ingredients.UpdateQuantity(ctx, tx, row.ID, after, now); err != nil {
			return err
		}
		row.CurrentQuantity = after
		rows[row.ID] = row

		d.QuantityRestored = d.QuantityRestored.Add(amount)
		d.UpdatedAt = now
		if err := s.repo.SaveDetail(ctx, tx, d); err != nil {
			return err
		}

		entryNotes := notes
		history = append(history, &ingredientdomain.StockHistory{
			ID:              s.genID.Generate(),
			IngredientID:    row.ID,
			IngredientName:  row.Name,
			ActionType:      ingredientdomain.ActionRollback,
			QuantityBefore:  before,
			QuantityAfter:   after,
			QuantityChanged: amount,
			PerformedBy:     ingredientdomain.PerformedBySystem,
			OrderID:         &orderID,
			Notes:           &entryNotes,
			CreatedAt:       now,
		})
		result.Restored = append(result.Restored, stockdomain.RestoredLine{
			IngredientID:   row.ID,
			IngredientName: row.Name,
			Unit:           d.Unit,
			Quantity:       amount,
			Before:         before,
			After:          after,
		})
	}
	if err := s.ingredients.InsertHistory(ctx, tx, history...); err != nil {
		return err
	}
	result.RestoredIngredients = len(result.Restored)
	result.Details = details

	fully := true
	for _, d := range details {
		if d.Remaining().IsPositive() {
			fully = false
			break
		}
	}
	if fully {
		record.Status = stockdomain.RecordRolledBack
		record.RolledBackAt = &now
		record.UpdatedAt = now
		if err := s.repo.SaveRecord(ctx, tx, record); err != nil {
			return err
		}
	}
	result.RecordStatus = record.Status
	return nil
}

func (s *Service) Consumption(ctx context.Context, orderID string) (*stockdomain.ConsumptionView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, stockdomain.ErrInvalidOrderID
	}
	record, err := s.repo.FindRecord(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, stockdomain.ErrNotConsumed
	}
	details, err := s.repo.ListDetails(ctx, s.db, record.ID)
	if err != nil {
		return nil, err
	}
	return &stockdomain.ConsumptionView{Record: *record, Details: details}, nil
}

func (s *Service) record(ctx context.Context, consume bool, outcome string) {
	if consume {
		s.metrics.RecordStockConsumption(ctx, outcome)
		return
	}
	s.metrics.RecordStockCheck(ctx, outcome)
}

func normalizeRequest(req stockdomain.Request) (stockdomain.Request, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		return req, stockdomain.ErrInvalidOrderID
	}
	if len(req.Items) == 0 {
		return req, stockdomain.ErrEmptyItems
	}
	items := make([]stockdomain.Item, 0, len(req.Items))
	for _, item := range req.Items {
		item.MenuName = strings.TrimSpace(item.MenuName)
		item.Preference = strings.TrimSpace(item.Preference)
		if item.MenuName == "" || item.Quantity < 1 {
			return req, fmt.Errorf("%w: %q x%d", stockdomain.ErrInvalidItem, item.MenuName, item.Quantity)
		}
		items = append(items, item)
	}
	req.Items = items
	return req, nil
}

// lineShares splits each ingredient's draw by order line. Lines with the
// same menu and preference are merged.
func lineShares(plan *stockdomain.Plan) map[snowflake.ID][]stockdomain.LineShare {
	out := make(map[snowflake.ID][]stockdomain.LineShare)
	for _, item := range plan.Items {
		for id, per := range item.PerServing {
			lines := out[id]
			merged := false
			for i := range lines {
				if lines[i].MenuName == item.MenuName && lines[i].Preference == item.Preference && lines[i].PerServing.Equal(per) {
					lines[i].Servings += item.Quantity
					merged = true
					break
				}
			}
			if !merged {
				lines = append(lines, stockdomain.LineShare{
					MenuName:   item.MenuName,
					Preference: item.Preference,
					PerServing: per,
					Servings:   item.Quantity,
				})
			}
			out[id] = lines
		}
	}
	return out
}

func menuDetails(plan *stockdomain.Plan) []stockdomain.MenuDetail {
	out := make([]stockdomain.MenuDetail, 0, len(plan.Items))
	for _, item := range plan.Items {
		out = append(out, stockdomain.MenuDetail{
			MenuName:     item.MenuName,
			Preference:   item.Preference,
			RecipeCount:  item.RecipeCount,
			RequestedQty: item.Quantity,
		})
	}
	return out
}

func alreadyConsumed(record *stockdomain.ConsumptionRecord) *stockdomain.Result {
	var names []string
	_ = json.Unmarshal(record.MenuNames, &names)
	details := make([]stockdomain.MenuDetail, 0, len(names))
	for _, name := range names {
		details = append(details, stockdomain.MenuDetail{MenuName: name, RequestedQty: 1})
	}
	return &stockdomain.Result{
		OrderID:            record.OrderID,
		CanFulfill:         true,
		AlreadyConsumed:    true,
		Message:            "Stock already consumed for this order",
		Shortages:          []stockdomain.Shortage{},
		PartialSuggestions: []stockdomain.Suggestion{},
		Details:            details,
	}
}

// fillRecord sets the menu names and "2x Latte, 1x Tea" summary, capped at
// five entries.
func fillRecord(record *stockdomain.ConsumptionRecord, items []stockdomain.Item) {
	names := make([]string, 0, len(items))
	parts := make([]string, 0, len(items))
	total := 0
	for _, item := range items {
		names = append(names, item.MenuName)
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.MenuName))
		total += item.Quantity
	}
	record.MenuSummary = MenuSummary(parts)
	record.TotalMenuItems = total
	if raw, err := json.Marshal(names); err == nil {
		record.MenuNames = datatypes.JSON(raw)
	}
}

func MenuSummary(parts []string) string {
	if len(parts) <= menuSummaryLimit {
		return strings.Join(parts, ", ")
	}
	return strings.Join(parts[:menuSummaryLimit], ", ") + fmt.Sprintf(" and %d more", len(parts)-menuSummaryLimit)
}
