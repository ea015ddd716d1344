package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/smallbiznis/pantry/internal/clock"
	obslogger "github.com/smallbiznis/pantry/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pantry/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"github.com/smallbiznis/pantry/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RelayParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    outboxdomain.Repository
	Router  outboxdomain.Router
	Sender  outboxdomain.Sender
	Config  Config
	Tap     outboxdomain.Tap    `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Relay struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	repo    outboxdomain.Repository
	router  outboxdomain.Router
	sender  outboxdomain.Sender
	tap     outboxdomain.Tap
	metrics *obsmetrics.Metrics
	cfg     Config
}

func NewRelay(p RelayParams) *Relay {
	return &Relay{
		db:      p.DB,
		log:     p.Log.Named("outbox.relay"),
		clock:   p.Clock,
		repo:    p.Repo,
		router:  p.Router,
		sender:  p.Sender,
		tap:     p.Tap,
		metrics: p.Metrics,
		cfg:     p.Config.withDefaults(),
	}
}

// ProcessPending delivers one batch. Per-event failures are recorded on the
// row and never returned.
func (r *Relay) ProcessPending(ctx context.Context) (outboxdomain.RelayResult, error) {
	var result outboxdomain.RelayResult

	now := r.clock.Now()
	events, err := r.repo.Claim(ctx, r.db, now, now.Add(r.cfg.ClaimTTL), r.cfg.BatchSize)
	if err != nil {
		return result, err
	}
	result.Claimed = len(events)

	for _, event := range events {
		if ctx.Err() != nil {
			// unclaimed rows become visible again once ClaimTTL passes
			return result, ctx.Err()
		}
		outcome, err := r.deliver(ctx, event)
		if err != nil {
			return result, err
		}
		switch outcome {
		case "delivered":
			result.Delivered++
		case "dead":
			result.Dead++
		default:
			result.Retrying++
		}
	}

	return result, nil
}

func (r *Relay) deliver(ctx context.Context, event outboxdomain.Event) (string, error) {
	log := obslogger.WithContext(ctx, r.log).With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
	)

	sendErr := r.send(ctx, event)
	now := r.clock.Now()

	if sendErr == nil {
		if err := r.repo.MarkProcessed(ctx, r.db, event.ID, now); err != nil {
			return "", err
		}
		r.metrics.RecordOutboxDelivery(ctx, event.EventType, "delivered")
		log.Info("outbox event delivered")
		r.mirror(ctx, event, log)
		return "delivered", nil
	}

	attempts := event.RetryCount + 1
	var next *time.Time
	outcome := "retrying"
	if attempts >= event.MaxRetries {
		outcome = "dead"
	} else {
		t := now.Add(r.cfg.backoff(attempts))
		next = &t
	}

	if err := r.repo.MarkFailed(ctx, r.db, event.ID, attempts, truncate(sendErr.Error(), 1000), next); err != nil {
		return "", err
	}
	r.metrics.RecordOutboxDelivery(ctx, event.EventType, outcome)

	fields := []zap.Field{
		zap.Int("retry_count", attempts),
		zap.Int("max_retries", event.MaxRetries),
		zap.Error(sendErr),
	}
	if outcome == "dead" {
		log.Error("outbox event dead after max retries", fields...)
	} else {
		log.Warn("outbox event delivery failed; will retry", fields...)
	}
	return outcome, nil
}

func (r *Relay) send(ctx context.Context, event outboxdomain.Event) error {
	delivery, err := r.router.Route(event)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.sender.Send(sendCtx, event, delivery)
}

func (r *Relay) mirror(ctx context.Context, event outboxdomain.Event, log *zap.Logger) {
	if r.tap == nil {
		return
	}
	if err := r.tap.Publish(ctx, event); err != nil {
		log.Warn("outbox tap publish failed", zap.Error(err))
	}
}

func (r *Relay) Status(ctx context.Context) (outboxdomain.Status, error) {
	return r.repo.Status(ctx, r.db)
}

// Job runs the relay under the scheduler.
func (r *Relay) Job() scheduler.Job {
	return scheduler.Job{
		Name:      "outbox_relay",
		Interval:  r.cfg.RelayInterval,
		Timeout:   r.cfg.ClaimTTL,
		BatchSize: r.cfg.BatchSize,
		Run: func(ctx context.Context) (int, error) {
			res, err := r.ProcessPending(ctx)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return res.Delivered, err
			}
			obsmetrics.Jobs().AddProcessed("outbox_relay", "retrying", res.Retrying)
			obsmetrics.Jobs().AddProcessed("outbox_relay", "dead", res.Dead)
			return res.Delivered, err
		},
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
