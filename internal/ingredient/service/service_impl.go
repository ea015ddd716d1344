package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pantry/internal/clock"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"github.com/smallbiznis/pantry/internal/observability/logger"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      ingredientdomain.Repository
	Publisher outboxdomain.Publisher           `optional:"true"`
	Flavors   ingredientdomain.FlavorDefaulter `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      ingredientdomain.Repository
	publisher outboxdomain.Publisher
	flavors   ingredientdomain.FlavorDefaulter
}

func New(p Params) ingredientdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("ingredient.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		publisher: p.Publisher,
		flavors:   p.Flavors,
	}
}

func (s *Service) List(ctx context.Context, includeUnavailable bool) ([]ingredientdomain.Ingredient, error) {
	return s.repo.List(ctx, s.db, includeUnavailable)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*ingredientdomain.Ingredient, error) {
	if id == 0 {
		return nil, ingredientdomain.ErrInvalidID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ingredientdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) Add(ctx context.Context, req ingredientdomain.AddRequest) (*ingredientdomain.Ingredient, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ingredientdomain.ErrInvalidName
	}
	if !req.Category.Valid() {
		return nil, ingredientdomain.ErrInvalidCategory
	}
	if !req.Unit.Valid() {
		return nil, ingredientdomain.ErrInvalidUnit
	}
	if req.CurrentQuantity.IsNegative() || req.MinimumQuantity.IsNegative() {
		return nil, ingredientdomain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	item := &ingredientdomain.Ingredient{
		ID:              s.genID.Generate(),
		Name:            name,
		CurrentQuantity: req.CurrentQuantity,
		MinimumQuantity: req.MinimumQuantity,
		Category:        req.Category,
		Unit:            req.Unit,
		IsAvailable:     true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mapped := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByName(ctx, tx, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return ingredientdomain.ErrDuplicateName
		}
		if err := s.repo.Insert(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ingredientdomain.ErrDuplicateName
			}
			return err
		}
		if err := s.publish(ctx, tx, item, ingredientdomain.EventIngredientAdded, ingredientPayload(item)); err != nil {
			return err
		}
		if s.flavors != nil {
			mapped, err = s.flavors.EnsureDefault(ctx, tx, item)
			if err != nil {
				return fmt.Errorf("derive flavor mapping: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ingredient added",
		zap.String("ingredient_id", item.ID.String()),
		zap.String("name", item.Name),
		zap.Bool("flavor_mapped", mapped),
	)
	return item, nil
}

func (s *Service) Update(ctx context.Context, req ingredientdomain.UpdateRequest) (*ingredientdomain.UpdateResult, error) {
	if req.ID == 0 {
		return nil, ingredientdomain.ErrInvalidID
	}
	performer := performerOrDefault(req.PerformedBy)

	var result *ingredientdomain.UpdateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.repo.LockByIDs(ctx, tx, []snowflake.ID{req.ID})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ingredientdomain.ErrNotFound
		}
		item := &items[0]
		oldName := item.Name
		oldQty := item.CurrentQuantity
		oldMin := item.MinimumQuantity

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return ingredientdomain.ErrInvalidName
			}
			item.Name = name
		}
		if req.Category != nil {
			if !req.Category.Valid() {
				return ingredientdomain.ErrInvalidCategory
			}
			item.Category = *req.Category
		}
		if req.Unit != nil {
			if !req.Unit.Valid() {
				return ingredientdomain.ErrInvalidUnit
			}
			item.Unit = *req.Unit
		}
		if req.CurrentQuantity != nil {
			if req.CurrentQuantity.IsNegative() {
				return ingredientdomain.ErrInvalidQuantity
			}
			item.CurrentQuantity = *req.CurrentQuantity
		}
		if req.MinimumQuantity != nil {
			if req.MinimumQuantity.IsNegative() {
				return ingredientdomain.ErrInvalidQuantity
			}
			item.MinimumQuantity = *req.MinimumQuantity
		}

		now := s.clock.Now()
		item.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ingredientdomain.ErrDuplicateName
			}
			return err
		}

		result = &ingredientdomain.UpdateResult{
			Ingredient:      item,
			NameChanged:     oldName != item.Name,
			QuantityChanged: !oldQty.Equal(item.CurrentQuantity),
			MinimumChanged:  !oldMin.Equal(item.MinimumQuantity),
		}

		renamed := ""
		if result.NameChanged {
			renamed = fmt.Sprintf(" (renamed %s -> %s)", oldName, item.Name)
		}
		var entries []*ingredientdomain.StockHistory
		if result.QuantityChanged {
			entries = append(entries, s.history(item, ingredientdomain.ActionEditStock, oldQty, item.CurrentQuantity, performer, nil,
				joinNotes("Edit stock", req.Notes)+renamed, now))
		}
		if result.MinimumChanged {
			entries = append(entries, s.history(item, ingredientdomain.ActionEditMinimum, oldMin, item.MinimumQuantity, performer, nil,
				joinNotes("Edit minimum", req.Notes)+renamed, now))
		}
		if err := s.repo.InsertHistory(ctx, tx, entries...); err != nil {
			return err
		}
		return s.publish(ctx, tx, item, ingredientdomain.EventIngredientUpdated, ingredientPayload(item))
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ingredient updated",
		zap.String("ingredient_id", result.Ingredient.ID.String()),
		zap.String("performed_by", performer),
		zap.Bool("quantity_changed", result.QuantityChanged),
		zap.Bool("minimum_changed", result.MinimumChanged),
	)
	return result, nil
}

func (s *Service) SetAvailability(ctx context.Context, req ingredientdomain.AvailabilityRequest) (*ingredientdomain.AvailabilityResult, error) {
	if req.ID == 0 {
		return nil, ingredientdomain.ErrInvalidID
	}
	performer := performerOrDefault(req.PerformedBy)

	var result *ingredientdomain.AvailabilityResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.repo.LockByIDs(ctx, tx, []snowflake.ID{req.ID})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ingredientdomain.ErrNotFound
		}
		item := &items[0]
		result = &ingredientdomain.AvailabilityResult{Ingredient: item, Previous: item.IsAvailable}
		if item.IsAvailable == req.Available {
			return nil
		}

		now := s.clock.Now()
		item.IsAvailable = req.Available
		item.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, item); err != nil {
			return err
		}
		result.Changed = true

		action := ingredientdomain.ActionMakeUnavailable
		eventType := ingredientdomain.EventIngredientMadeUnavailable
		if req.Available {
			action = ingredientdomain.ActionMakeAvailable
			eventType = ingredientdomain.EventIngredientMadeAvailable
		}
		entry := s.history(item, action, availabilityFlag(result.Previous), availabilityFlag(req.Available), performer, nil,
			fmt.Sprintf("Availability set from %s to %s", availabilityLabel(result.Previous), availabilityLabel(req.Available)), now)
		if err := s.repo.InsertHistory(ctx, tx, entry); err != nil {
			return err
		}
		return s.publish(ctx, tx, item, eventType, map[string]any{
			"id":               item.ID,
			"name":             item.Name,
			"old_availability": result.Previous,
			"new_availability": req.Available,
		})
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		s.log.Info("ingredient availability changed",
			zap.String("ingredient_id", req.ID.String()),
			zap.Bool("available", req.Available),
			zap.String("performed_by", performer),
		)
	}
	return result, nil
}

func (s *Service) Restock(ctx context.Context, req ingredientdomain.RestockRequest) (*ingredientdomain.AdjustmentResult, error) {
	if req.IngredientID == 0 {
		return nil, ingredientdomain.ErrInvalidID
	}
	if !req.Quantity.IsPositive() {
		return nil, ingredientdomain.ErrInvalidQuantity
	}
	performer := performerOrDefault(req.PerformedBy)

	var result *ingredientdomain.AdjustmentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.repo.LockByIDs(ctx, tx, []snowflake.ID{req.IngredientID})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ingredientdomain.ErrNotFound
		}
		item := &items[0]
		before := item.CurrentQuantity
		after := before.Add(req.Quantity)

		now := s.clock.Now()
		if err := s.repo.UpdateQuantity(ctx, tx, item.ID, after, now); err != nil {
			return err
		}
		item.CurrentQuantity = after
		item.UpdatedAt = now

		entry := s.history(item, ingredientdomain.ActionRestock, before, after, performer, nil, joinNotes("Restock", req.Notes), now)
		if err := s.repo.InsertHistory(ctx, tx, entry); err != nil {
			return err
		}
		result = &ingredientdomain.AdjustmentResult{Ingredient: item, Before: before, After: after, History: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("ingredient restocked",
		zap.String("ingredient_id", req.IngredientID.String()),
		zap.String("added", req.Quantity.String()),
		zap.String("performed_by", performer),
	)
	return result, nil
}

func (s *Service) SetMinimum(ctx context.Context, req ingredientdomain.MinimumRequest) (*ingredientdomain.AdjustmentResult, error) {
	if req.IngredientID == 0 {
		return nil, ingredientdomain.ErrInvalidID
	}
	if req.Minimum.IsNegative() {
		return nil, ingredientdomain.ErrInvalidQuantity
	}
	performer := performerOrDefault(req.PerformedBy)

	var result *ingredientdomain.AdjustmentResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.repo.LockByIDs(ctx, tx, []snowflake.ID{req.IngredientID})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ingredientdomain.ErrNotFound
		}
		item := &items[0]
		before := item.MinimumQuantity

		now := s.clock.Now()
		item.MinimumQuantity = req.Minimum
		item.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, item); err != nil {
			return err
		}

		entry := s.history(item, ingredientdomain.ActionEditMinimum, before, req.Minimum, performer, nil, joinNotes("Update minimum stock", req.Notes), now)
		if err := s.repo.InsertHistory(ctx, tx, entry); err != nil {
			return err
		}
		result = &ingredientdomain.AdjustmentResult{Ingredient: item, Before: before, After: req.Minimum, History: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Alerts(ctx context.Context) (*ingredientdomain.AlertReport, error) {
	items, err := s.repo.List(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	return BuildAlerts(items), nil
}

func (s *Service) History(ctx context.Context, filter ingredientdomain.HistoryFilter) ([]ingredientdomain.StockHistory, error) {
	if filter.ActionType != "" && !filter.ActionType.Valid() {
		return nil, ingredientdomain.ErrInvalidAction
	}
	if filter.IngredientID != 0 {
		if _, err := s.Get(ctx, filter.IngredientID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListHistory(ctx, s.db, filter)
}

// BuildAlerts classifies every ingredient: critical at or below zero, low
// under its minimum, ok otherwise.
func BuildAlerts(items []ingredientdomain.Ingredient) *ingredientdomain.AlertReport {
	report := &ingredientdomain.AlertReport{
		Critical: []ingredientdomain.Alert{},
		Low:      []ingredientdomain.Alert{},
		OK:       []ingredientdomain.Alert{},
	}
	for _, item := range items {
		alert := ingredientdomain.Alert{
			ID:      item.ID,
			Name:    item.Name,
			Current: item.CurrentQuantity,
			Minimum: item.MinimumQuantity,
			Unit:    item.Unit,
		}
		switch {
		case !item.CurrentQuantity.IsPositive():
			alert.Level = ingredientdomain.AlertCritical
			report.Critical = append(report.Critical, alert)
		case item.CurrentQuantity.LessThan(item.MinimumQuantity):
			alert.Level = ingredientdomain.AlertLow
			report.Low = append(report.Low, alert)
		default:
			alert.Level = ingredientdomain.AlertOK
			report.OK = append(report.OK, alert)
		}
	}

	report.Summary = ingredientdomain.AlertSummary{
		Critical: len(report.Critical),
		Low:      len(report.Low),
		OK:       len(report.OK),
	}
	switch {
	case report.Summary.Critical > 0:
		report.Message = fmt.Sprintf("URGENT: %d ingredient(s) out of stock", report.Summary.Critical)
	case report.Summary.Low > 0:
		report.Message = fmt.Sprintf("WARNING: %d ingredient(s) need restock", report.Summary.Low)
	default:
		report.Message = "All stock levels are healthy"
	}
	return report
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, item *ingredientdomain.Ingredient, eventType string, payload any) error {
	if s.publisher == nil {
		return nil
	}
	if _, err := s.publisher.PublishTx(ctx, tx, item.ID.String(), eventType, payload); err != nil {
		logger.FromContext(ctx).Error("publish ingredient event failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) history(item *ingredientdomain.Ingredient, action ingredientdomain.Action, before, after decimal.Decimal, performer string, orderID *string, notes string, at time.Time) *ingredientdomain.StockHistory {
	entry := &ingredientdomain.StockHistory{
		ID:              s.genID.Generate(),
		IngredientID:    item.ID,
		IngredientName:  item.Name,
		ActionType:      action,
		QuantityBefore:  before,
		QuantityAfter:   after,
		QuantityChanged: after.Sub(before),
		PerformedBy:     performer,
		OrderID:         orderID,
		CreatedAt:       at,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		entry.Notes = &notes
	}
	return entry
}

func ingredientPayload(item *ingredientdomain.Ingredient) map[string]any {
	return map[string]any{
		"id":               item.ID,
		"name":             item.Name,
		"current_quantity": item.CurrentQuantity,
		"minimum_quantity": item.MinimumQuantity,
		"category":         item.Category,
		"unit":             item.Unit,
		"is_available":     item.IsAvailable,
	}
}

func performerOrDefault(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return ingredientdomain.DefaultPerformer
}

func joinNotes(prefix, notes string) string {
	if notes = strings.TrimSpace(notes); notes != "" {
		return prefix + ": " + notes
	}
	return prefix
}

func availabilityFlag(available bool) decimal.Decimal {
	if available {
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

func availabilityLabel(available bool) string {
	if available {
		return "available"
	}
	return "unavailable"
}
