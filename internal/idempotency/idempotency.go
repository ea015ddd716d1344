// Package idempotency records which relayed events a consumer has applied,
// keyed by (event_type, target_id).
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/pantry/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StaleAfter is how long a started key blocks redelivery before it may be retaken.
const StaleAfter = 5 * time.Minute

var (
	ErrInProgress = errors.New("idempotency_in_progress")
	ErrInvalidKey = errors.New("idempotency_invalid_key")
)

type Key struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	EventType    string    `json:"event_type" gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_keys_event_target,priority:1"`
	TargetID     string    `json:"target_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_idempotency_keys_event_target,priority:2"`
	Status       Status    `json:"status" gorm:"type:varchar(16);not null;index"`
	ErrorMessage *string   `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"not null"`
}

func (Key) TableName() string { return "idempotency_keys" }

var Module = fx.Module("idempotency",
	fx.Provide(New),
)

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func New(db *gorm.DB, log *zap.Logger, clk clock.Clock) *Ledger {
	return &Ledger{db: db, log: log.Named("idempotency"), clock: clk}
}

// Begin claims the key. apply is false when the event was already applied.
func (l *Ledger) Begin(ctx context.Context, tx *gorm.DB, eventType, targetID string) (bool, error) {
	eventType, targetID = strings.TrimSpace(eventType), strings.TrimSpace(targetID)
	if eventType == "" || targetID == "" {
		return false, ErrInvalidKey
	}

	now := l.clock.Now()
	key := Key{
		ID:        ulid.Make().String(),
		EventType: eventType,
		TargetID:  targetID,
		Status:    StatusStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_type"}, {Name: "target_id"}},
			DoNothing: true,
		}).
		Create(&key)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	var existing Key
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("event_type = ? AND target_id = ?", eventType, targetID).
		First(&existing).Error
	if err != nil {
		return false, err
	}

	switch existing.Status {
	case StatusSucceeded:
		return false, nil
	case StatusStarted:
		if now.Sub(existing.UpdatedAt) < StaleAfter {
			return false, ErrInProgress
		}
	}

	// stale started or failed: retake
	return true, tx.WithContext(ctx).Model(&Key{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"status":        StatusStarted,
			"error_message": nil,
			"updated_at":    now,
		}).Error
}

func (l *Ledger) MarkSucceeded(ctx context.Context, tx *gorm.DB, eventType, targetID string) error {
	return l.mark(ctx, tx, eventType, targetID, StatusSucceeded, nil)
}

func (l *Ledger) MarkFailed(ctx context.Context, tx *gorm.DB, eventType, targetID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.mark(ctx, tx, eventType, targetID, StatusFailed, &msg)
}

func (l *Ledger) mark(ctx context.Context, tx *gorm.DB, eventType, targetID string, status Status, msg *string) error {
	return tx.WithContext(ctx).Model(&Key{}).
		Where("event_type = ? AND target_id = ?", strings.TrimSpace(eventType), strings.TrimSpace(targetID)).
		Updates(map[string]any{
			"status":        status,
			"error_message": msg,
			"updated_at":    l.clock.Now(),
		}).Error
}

// Run applies fn at most once per key. The claim is committed on its own so
// a crashed consumer leaves a started row that goes stale; fn runs in a
// second transaction that also marks the key succeeded. applied is false for
// duplicates.
func (l *Ledger) Run(ctx context.Context, eventType, targetID string, fn func(tx *gorm.DB) error) (bool, error) {
	var apply bool
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		apply, err = l.Begin(ctx, tx, eventType, targetID)
		return err
	})
	if err != nil {
		return false, err
	}
	if !apply {
		l.log.Debug("duplicate event skipped",
			zap.String("event_type", eventType),
			zap.String("target_id", targetID),
		)
		return false, nil
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return l.MarkSucceeded(ctx, tx, eventType, targetID)
	})
	if err != nil {
		if markErr := l.MarkFailed(ctx, l.db, eventType, targetID, err); markErr != nil {
			l.log.Warn("mark idempotency key failed", zap.Error(markErr))
		}
		return false, fmt.Errorf("apply %s %s: %w", eventType, targetID, err)
	}
	return true, nil
}
