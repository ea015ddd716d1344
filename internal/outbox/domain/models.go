package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Event is one pending cross-service notification. Rows are never deleted;
// they end processed or dead once retry_count reaches max_retries.
type Event struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AggregateID   string         `json:"aggregate_id" gorm:"type:varchar(64);not null;index"`
	EventType     string         `json:"event_type" gorm:"type:varchar(64);not null;index"`
	Payload       datatypes.JSON `json:"payload" gorm:"not null"`
	Processed     bool           `json:"processed" gorm:"not null;default:false;index:idx_outbox_events_pending,priority:1"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	RetryCount    int            `json:"retry_count" gorm:"not null;default:0"`
	MaxRetries    int            `json:"max_retries" gorm:"not null;default:3"`
	ErrorMessage  *string        `json:"error_message,omitempty" gorm:"type:text"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty" gorm:"index:idx_outbox_events_pending,priority:2"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (Event) TableName() string { return "outbox_events" }

// Dead reports whether the relay has given up on the event.
func (e Event) Dead() bool {
	return !e.Processed && e.RetryCount >= e.MaxRetries
}

// Status summarises the outbox for the admin endpoint.
type Status struct {
	Total     int64 `json:"total"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
}

// RelayResult counts the outcome of one relay pass.
type RelayResult struct {
	Claimed   int `json:"claimed"`
	Delivered int `json:"delivered"`
	Retrying  int `json:"retrying"`
	Dead      int `json:"dead"`
}
