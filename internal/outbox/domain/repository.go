package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	// Claim locks up to limit deliverable rows, pushes their next_attempt_at
	// to claimUntil and returns them.
	Claim(ctx context.Context, db *gorm.DB, now, claimUntil time.Time, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id string, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id string, retryCount int, message string, nextAttemptAt *time.Time) error
	Status(ctx context.Context, db *gorm.DB) (Status, error)
	FindByAggregate(ctx context.Context, db *gorm.DB, aggregateID string) ([]Event, error)
}
