package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/internal/clock"
	"github.com/smallbiznis/pantry/internal/config"
	flavordomain "github.com/smallbiznis/pantry/internal/flavor/domain"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"github.com/smallbiznis/pantry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        flavordomain.Repository
	Ingredients ingredientdomain.Repository
	Rules       *config.ServingRulesHolder `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        flavordomain.Repository
	ingredients ingredientdomain.Repository
	rules       *config.ServingRulesHolder
}

func New(p Params) flavordomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("flavor.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		ingredients: p.Ingredients,
		rules:       p.Rules,
	}
}

func (s *Service) List(ctx context.Context) ([]flavordomain.MappingView, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Names(ctx context.Context) ([]string, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.FlavorName)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Service) Create(ctx context.Context, req flavordomain.CreateRequest) (*flavordomain.MappingView, error) {
	name := strings.TrimSpace(req.FlavorName)
	key := flavordomain.Key(name)
	if name == "" || key == "" {
		return nil, flavordomain.ErrInvalidName
	}

	ingredient, err := s.ingredients.FindByID(ctx, s.db, req.IngredientID)
	if err != nil {
		return nil, err
	}
	if ingredient == nil {
		return nil, flavordomain.ErrIngredientNotFound
	}

	qty := flavordomain.DefaultQuantityPerServing
	if req.QuantityPerServing != nil {
		qty = *req.QuantityPerServing
	}
	if !qty.IsPositive() {
		return nil, flavordomain.ErrInvalidQuantity
	}
	unit := ingredient.Unit
	if req.Unit != nil {
		unit = *req.Unit
	}
	if !unit.Valid() {
		return nil, flavordomain.ErrInvalidUnit
	}

	existing, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, flavordomain.ErrDuplicateName
	}

	now := s.clock.Now()
	mapping := &flavordomain.Mapping{
		ID:                 s.genID.Generate(),
		FlavorName:         name,
		FlavorKey:          key,
		IngredientID:       ingredient.ID,
		QuantityPerServing: qty,
		Unit:               unit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, mapping); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, flavordomain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("flavor mapping created",
		zap.String("flavor", name),
		zap.String("ingredient_id", ingredient.ID.String()),
	)
	return &flavordomain.MappingView{Mapping: *mapping, IngredientName: ingredient.Name}, nil
}

func (s *Service) Update(ctx context.Context, req flavordomain.UpdateRequest) (*flavordomain.MappingView, error) {
	if req.ID == 0 {
		return nil, flavordomain.ErrInvalidID
	}
	mapping, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, flavordomain.ErrNotFound
	}

	if req.FlavorName != nil {
		name := strings.TrimSpace(*req.FlavorName)
		key := flavordomain.Key(name)
		if name == "" || key == "" {
			return nil, flavordomain.ErrInvalidName
		}
		if key != mapping.FlavorKey {
			other, err := s.repo.FindByKey(ctx, s.db, key)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != mapping.ID {
				return nil, flavordomain.ErrDuplicateName
			}
		}
		mapping.FlavorName = name
		mapping.FlavorKey = key
	}

	if req.IngredientID != nil {
		mapping.IngredientID = *req.IngredientID
	}
	ingredient, err := s.ingredients.FindByID(ctx, s.db, mapping.IngredientID)
	if err != nil {
		return nil, err
	}
	if ingredient == nil {
		return nil, flavordomain.ErrIngredientNotFound
	}

	if req.QuantityPerServing != nil {
		if !req.QuantityPerServing.IsPositive() {
			return nil, flavordomain.ErrInvalidQuantity
		}
		mapping.QuantityPerServing = *req.QuantityPerServing
	}
	if req.Unit != nil {
		if !req.Unit.Valid() {
			return nil, flavordomain.ErrInvalidUnit
		}
		mapping.Unit = *req.Unit
	}

	mapping.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, mapping); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, flavordomain.ErrDuplicateName
		}
		return nil, err
	}
	return &flavordomain.MappingView{Mapping: *mapping, IngredientName: ingredient.Name}, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return flavordomain.ErrInvalidID
	}
	return s.repo.Delete(ctx, s.db, id)
}

func (s *Service) Resolve(ctx context.Context, name string) (*flavordomain.Mapping, error) {
	key := flavordomain.Key(name)
	if key == "" {
		return nil, flavordomain.ErrInvalidName
	}
	mapping, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, flavordomain.ErrNotFound
	}
	return mapping, nil
}

func (s *Service) ResolveMany(ctx context.Context, names []string) (map[string]flavordomain.Mapping, error) {
	out := make(map[string]flavordomain.Mapping, len(names))
	keys := make([]string, 0, len(names))
	for _, name := range names {
		if key := flavordomain.Key(name); key != "" {
			keys = append(keys, key)
		}
	}
	items, err := s.repo.FindByKeys(ctx, s.db, keys)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]flavordomain.Mapping, len(items))
	for _, item := range items {
		byKey[item.FlavorKey] = item
	}
	for _, name := range names {
		if item, ok := byKey[flavordomain.Key(name)]; ok {
			out[name] = item
		}
	}
	return out, nil
}

func (s *Service) EnsureDefault(ctx context.Context, tx *gorm.DB, ingredient *ingredientdomain.Ingredient) (bool, error) {
	if ingredient == nil {
		return false, nil
	}
	qty, ok := flavordomain.DefaultServing(s.rules.Get(), *ingredient)
	if !ok {
		return false, nil
	}
	key := flavordomain.Key(ingredient.Name)
	if key == "" {
		return false, nil
	}

	existing, err := s.repo.FindByKey(ctx, tx, key)
	if err != nil {
		return false, err
	}
	if existing != nil {
		s.log.Debug("flavor mapping already exists", zap.String("flavor", ingredient.Name))
		return false, nil
	}

	now := s.clock.Now()
	mapping := &flavordomain.Mapping{
		ID:                 s.genID.Generate(),
		FlavorName:         ingredient.Name,
		FlavorKey:          key,
		IngredientID:       ingredient.ID,
		QuantityPerServing: qty,
		Unit:               ingredient.Unit,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, tx, mapping); err != nil {
		return false, err
	}
	s.log.Info("flavor mapping derived",
		zap.String("flavor", ingredient.Name),
		zap.String("quantity_per_serving", qty.String()),
		zap.String("unit", string(ingredient.Unit)),
	)
	return true, nil
}
