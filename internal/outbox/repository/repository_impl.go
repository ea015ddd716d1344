package repository

import (
	"context"
	"time"

	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() outboxdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *outboxdomain.Event) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, now, claimUntil time.Time, limit int) ([]outboxdomain.Event, error) {
	var events []outboxdomain.Event
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("processed = ? AND retry_count < max_retries", false).
			Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&events).Error
		if err != nil || len(events) == 0 {
			return err
		}

		ids := make([]string, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}
		return tx.Model(&outboxdomain.Event{}).
			Where("id IN ?", ids).
			Update("next_attempt_at", claimUntil).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET processed = ?, processed_at = ?, error_message = NULL, next_attempt_at = NULL
		 WHERE id = ?`,
		true,
		at,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id string, retryCount int, message string, nextAttemptAt *time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events
		 SET retry_count = ?, error_message = ?, next_attempt_at = ?
		 WHERE id = ? AND processed = ?`,
		retryCount,
		message,
		nextAttemptAt,
		id,
		false,
	).Error
}

func (r *repo) Status(ctx context.Context, db *gorm.DB) (outboxdomain.Status, error) {
	var row struct {
		Total     int64
		Processed int64
		Failed    int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COUNT(*) AS total,
		   COALESCE(SUM(CASE WHEN processed THEN 1 ELSE 0 END), 0) AS processed,
		   COALESCE(SUM(CASE WHEN NOT processed AND retry_count >= max_retries THEN 1 ELSE 0 END), 0) AS failed
		 FROM outbox_events`,
	).Scan(&row).Error
	if err != nil {
		return outboxdomain.Status{}, err
	}
	return outboxdomain.Status{
		Total:     row.Total,
		Processed: row.Processed,
		Failed:    row.Failed,
		Pending:   row.Total - row.Processed - row.Failed,
	}, nil
}

func (r *repo) FindByAggregate(ctx context.Context, db *gorm.DB, aggregateID string) ([]outboxdomain.Event, error) {
	var events []outboxdomain.Event
	err := db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	return events, err
}
