package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/kafka"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/logger"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/retry"
	"github.com/City-of-Helsinki/haravajarjestelma/pkg/telemetry"
)

// DefaultTopic is where notification messages are produced
const DefaultTopic = "notifications"

// Producer is the subset of *kafka.Producer the dispatcher needs
type Producer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// KafkaDispatcherConfig contains configuration for KafkaDispatcher
type KafkaDispatcherConfig struct {
	Topic  string
	Site   SiteContext
	Retry  retry.Policy
	Source string
}

// KafkaDispatcher publishes notifications as JSON records
type KafkaDispatcher struct {
	producer Producer
	cfg      KafkaDispatcherConfig
	log      *logger.Logger
}

// NewKafkaDispatcher creates a new KafkaDispatcher
func NewKafkaDispatcher(producer Producer, cfg KafkaDispatcherConfig, log *logger.Logger) *KafkaDispatcher {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Source == "" {
		cfg.Source = "haravajarjestelma"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	return &KafkaDispatcher{producer: producer, cfg: cfg, log: log}
}

// Send produces one message, retrying transient broker errors
func (d *KafkaDispatcher) Send(ctx context.Context, recipient, templateKey string, data map[string]any) error {
	ctx, span := telemetry.StartSpan(ctx, "notification.kafka.send")
	defer span.End()

	msg := newMessage(d.cfg.Site, recipient, templateKey, data)
	value, err := json.Marshal(msg)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	headers := map[string]string{
		"template":     templateKey,
		"message_id":   msg.ID,
		"source":       d.cfg.Source,
		"content_type": "application/json",
	}
	telemetry.InjectHeaders(ctx, headers)

	record := &kafka.Message{
		Topic:     d.cfg.Topic,
		Key:       []byte(recipient),
		Value:     value,
		Headers:   headers,
		Timestamp: msg.CreatedAt,
	}

	err = retry.DoNotify(ctx, d.cfg.Retry, func(ctx context.Context) error {
		return d.producer.Produce(ctx, record)
	}, func(attempt int, err error, wait time.Duration) {
		d.log.Warn("Retrying notification publish",
			zap.String("template", templateKey),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to publish %s notification: %w", templateKey, err)
	}
	return nil
}
