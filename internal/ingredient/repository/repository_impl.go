package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ingredientdomain "github.com/smallbiznis/pantry/internal/ingredient/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ingredientdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ingredient *ingredientdomain.Ingredient) error {
	return db.WithContext(ctx).Create(ingredient).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, ingredient *ingredientdomain.Ingredient) error {
	return db.WithContext(ctx).Save(ingredient).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ingredientdomain.Ingredient, error) {
	var ingredient ingredientdomain.Ingredient
	err := db.WithContext(ctx).Where("id = ?", id).First(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*ingredientdomain.Ingredient, error) {
	var ingredient ingredientdomain.Ingredient
	err := db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&ingredient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, includeUnavailable bool) ([]ingredientdomain.Ingredient, error) {
	var items []ingredientdomain.Ingredient
	query := db.WithContext(ctx).Order("name ASC")
	if !includeUnavailable {
		query = query.Where("is_available = ?", true)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) LockByIDs(ctx context.Context, tx *gorm.DB, ids []snowflake.ID) ([]ingredientdomain.Ingredient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := SortedIDs(ids)

	var items []ingredientdomain.Ingredient
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateQuantity(ctx context.Context, tx *gorm.DB, id snowflake.ID, quantity decimal.Decimal, at time.Time) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE ingredients SET current_quantity = ?, updated_at = ? WHERE id = ?`,
		quantity,
		at,
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ingredientdomain.ErrNotFound
	}
	return nil
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, entries ...*ingredientdomain.StockHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(entries).Error
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, filter ingredientdomain.HistoryFilter) ([]ingredientdomain.StockHistory, error) {
	query := db.WithContext(ctx).Model(&ingredientdomain.StockHistory{})
	if filter.IngredientID != 0 {
		query = query.Where("ingredient_id = ?", filter.IngredientID)
	}
	if filter.ActionType != "" {
		query = query.Where("action_type = ?", filter.ActionType)
	}
	if performer := strings.TrimSpace(filter.PerformedBy); performer != "" {
		query = query.Where("LOWER(performed_by) LIKE ?", "%"+strings.ToLower(performer)+"%")
	}

	var items []ingredientdomain.StockHistory
	err := query.
		Order("created_at DESC, id DESC").
		Limit(filter.NormalizedLimit()).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SortedIDs returns a deduplicated ascending copy of ids, the only order in
// which ingredient rows may be locked.
func SortedIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
