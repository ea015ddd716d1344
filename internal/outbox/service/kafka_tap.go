package service

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/pantry/internal/config"
	outboxdomain "github.com/smallbiznis/pantry/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// KafkaTap mirrors delivered events to a topic keyed by aggregate id.
type KafkaTap struct {
	writer *kafka.Writer
}

// NewKafkaTap returns nil when no brokers are configured.
func NewKafkaTap(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) outboxdomain.Tap {
	if len(cfg.KafkaBrokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        strings.TrimSpace(cfg.KafkaOutboxTopic),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return writer.Close()
		},
	})
	log.Named("outbox.tap").Info("kafka tap enabled",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", writer.Topic),
	)
	return &KafkaTap{writer: writer}
}

func (t *KafkaTap) Publish(ctx context.Context, event outboxdomain.Event) error {
	return t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: []byte(event.Payload),
		Headers: []kafka.Header{
			{Key: outboxdomain.HeaderEventType, Value: []byte(event.EventType)},
			{Key: outboxdomain.HeaderEventID, Value: []byte(event.ID)},
		},
		Time: event.CreatedAt,
	})
}
