package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/pantry/internal/clock"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/internal/outbox/repository"
	"github.com/smallbiznis/pantry/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordedRequest struct {
	method    string
	path      string
	query     string
	eventType string
	eventID   string
	body      string
}

type fakeConsumer struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []recordedRequest
}

func (f *fakeConsumer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method:    r.Method,
		path:      r.URL.Path,
		query:     r.URL.RawQuery,
		eventType: r.Header.Get(outboxdomain.HeaderEventType),
		eventID:   r.Header.Get(outboxdomain.HeaderEventID),
		body:      string(raw),
	})
	status, body := f.status, f.body
	f.mu.Unlock()
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type relayFixture struct {
	db        *gorm.DB
	clock     *clock.FakeClock
	publisher outboxdomain.Publisher
	relay     *Relay
	consumer  *fakeConsumer
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	conn := dbtest.Open(t, &outboxdomain.Event{})
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	consumer := &fakeConsumer{status: http.StatusOK, body: `{"status":"success"}`}
	server := httptest.NewServer(consumer)
	t.Cleanup(server.Close)

	repo := repository.Provide()
	cfg := Config{BatchSize: 10, MaxRetries: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute}
	router := NewRouter(
		Route{EventType: "order_created", URL: server.URL + "/receive_order"},
		Route{
			EventType: "order_cancelled",
			Build: func(e outboxdomain.Event) (string, []byte, error) {
				return server.URL + "/kitchen/update_status/" + e.AggregateID + "?status=cancelled", nil, nil
			},
		},
	)

	return &relayFixture{
		db:        conn,
		clock:     clk,
		publisher: NewPublisher(repo, clk, cfg),
		relay: NewRelay(RelayParams{
			DB:     conn,
			Log:    zap.NewNop(),
			Clock:  clk,
			Repo:   repo,
			Router: router,
			Sender: NewHTTPSender(server.Client()),
			Config: cfg,
		}),
		consumer: consumer,
	}
}

func (f *relayFixture) publish(t *testing.T, aggregateID, eventType string, payload any) *outboxdomain.Event {
	t.Helper()
	var event *outboxdomain.Event
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		event, err = f.publisher.PublishTx(context.Background(), tx, aggregateID, eventType, payload)
		return err
	}))
	return event
}

func TestRelayDeliversWithEventHeaders(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	event := f.publish(t, "ORD1", "order_created", map[string]any{"order_id": "ORD1", "queue_number": 4})

	res, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)

	require.Len(t, f.consumer.requests, 1)
	got := f.consumer.requests[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/receive_order", got.path)
	assert.Equal(t, "order_created", got.eventType)
	assert.Equal(t, event.ID, got.eventID)
	assert.JSONEq(t, `{"order_id":"ORD1","queue_number":4}`, got.body)

	status, err := f.relay.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.Status{Total: 1, Processed: 1}, status)

	// processed rows are never picked up again
	res, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
}

func TestRelayDeadAfterMaxRetriesCountsAsFailed(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.consumer.status = http.StatusServiceUnavailable
	f.publish(t, "ORD2", "order_cancelled", map[string]any{"order_id": "ORD2"})

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := f.relay.ProcessPending(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, res.Claimed, "attempt %d", attempt)
		f.clock.Advance(time.Hour)
	}

	status, err := f.relay.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Total)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, int64(0), status.Pending)
	assert.Equal(t, int64(0), status.Processed)

	res, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed)
	assert.Len(t, f.consumer.requests, 3)
	assert.Equal(t, "/kitchen/update_status/ORD2", f.consumer.requests[0].path)
	assert.Equal(t, "status=cancelled", f.consumer.requests[0].query)

	var stored outboxdomain.Event
	require.NoError(t, f.db.First(&stored, "aggregate_id = ?", "ORD2").Error)
	assert.True(t, stored.Dead())
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "503")
}

func TestRelayBacksOffBetweenAttempts(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()
	f.consumer.status = http.StatusInternalServerError
	f.publish(t, "ORD3", "order_created", map[string]any{"order_id": "ORD3"})

	res, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)

	res, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Claimed, "still backing off")

	f.consumer.status = http.StatusOK
	f.clock.Advance(2 * time.Second)
	res, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
}

func TestRelayTreatsErrorEnvelopeAsFailure(t *testing.T) {
	f := newRelayFixture(t)
	f.consumer.body = `{"status":"error","message":"kitchen is closed","data":null}`
	f.publish(t, "ORD4", "order_created", map[string]any{"order_id": "ORD4"})

	res, err := f.relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)

	var stored outboxdomain.Event
	require.NoError(t, f.db.First(&stored, "aggregate_id = ?", "ORD4").Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "kitchen is closed")
}

func TestRelayUnroutableEventIsRetriedThenDead(t *testing.T) {
	f := newRelayFixture(t)
	f.publish(t, "ING1", "ingredient_added", map[string]any{"id": 1})

	res, err := f.relay.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retrying)
	assert.Empty(t, f.consumer.requests)
}

func TestPublishTxRejectsBlankIdentifiers(t *testing.T) {
	f := newRelayFixture(t)
	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.publisher.PublishTx(context.Background(), tx, " ", "order_created", nil)
		return err
	})
	assert.ErrorIs(t, err, outboxdomain.ErrEmptyAggregate)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := Config{BaseBackoff: 5 * time.Second, MaxBackoff: 30 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.backoff(1))
	assert.Equal(t, 10*time.Second, cfg.backoff(2))
	assert.Equal(t, 20*time.Second, cfg.backoff(3))
	assert.Equal(t, 30*time.Second, cfg.backoff(4))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", 998) + "é漢字"
	got := truncate(msg, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 998)+"é", got)

	assert.Equal(t, "short", truncate("  short  ", 1000))
	assert.Equal(t, "ab", truncate("ab漢", 4))
}
