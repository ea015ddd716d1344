package domain

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

type Publisher interface {
	// PublishTx records an event inside the caller's transaction.
	PublishTx(ctx context.Context, tx *gorm.DB, aggregateID, eventType string, payload any) (*Event, error)
}

type Relay interface {
	ProcessPending(ctx context.Context) (RelayResult, error)
	Status(ctx context.Context) (Status, error)
}

// Delivery is the HTTP request an event turns into.
type Delivery struct {
	Method string
	URL    string
	Body   []byte
}

// Router maps an event to the consuming service's endpoint.
type Router interface {
	Route(event Event) (Delivery, error)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, event Event, delivery Delivery) error
}

// Tap mirrors delivered events to a secondary sink. Failures never affect
// the relay.
type Tap interface {
	Publish(ctx context.Context, event Event) error
}

const (
	HeaderEventType = "X-Event-Type"
	HeaderEventID   = "X-Event-Id"
)

var (
	ErrUnroutable     = errors.New("outbox_unroutable_event")
	ErrInvalidPayload = errors.New("outbox_invalid_payload")
	ErrEmptyAggregate = errors.New("outbox_empty_aggregate_id")
	ErrEmptyEventType = errors.New("outbox_empty_event_type")
)

// DeliveryError carries the upstream status of a rejected delivery.
type DeliveryError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.StatusCode)
	}
	return e.Message
}

// Upstream marks delivery failures for job metrics.
func (e *DeliveryError) Upstream() string { return "outbox" }
