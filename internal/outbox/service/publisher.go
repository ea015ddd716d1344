package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/pantry/internal/clock"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type publisher struct {
	repo       outboxdomain.Repository
	clock      clock.Clock
	maxRetries int
}

func NewPublisher(repo outboxdomain.Repository, clk clock.Clock, cfg Config) outboxdomain.Publisher {
	cfg = cfg.withDefaults()
	return &publisher{repo: repo, clock: clk, maxRetries: cfg.MaxRetries}
}

func (p *publisher) PublishTx(ctx context.Context, tx *gorm.DB, aggregateID, eventType string, payload any) (*outboxdomain.Event, error) {
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, outboxdomain.ErrEmptyAggregate
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, outboxdomain.ErrEmptyEventType
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", outboxdomain.ErrInvalidPayload, err)
	}

	event := &outboxdomain.Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     datatypes.JSON(body),
		MaxRetries:  p.maxRetries,
		CreatedAt:   p.clock.Now(),
	}
	if err := p.repo.Insert(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return event, nil
}
