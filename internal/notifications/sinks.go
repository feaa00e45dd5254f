package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxSink persists notifications to outbox_events for the Pub/Sub publisher.
type OutboxSink struct {
	db      *gorm.DB
	emitter outboxEmitter
}

// NewOutboxSink builds a sink that writes through the outbox service.
func NewOutboxSink(db *gorm.DB, emitter outboxEmitter) (*OutboxSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &OutboxSink{db: db, emitter: emitter}, nil
}

func (s *OutboxSink) Notify(ctx context.Context, n Notification) error {
	return s.emitter.Emit(ctx, s.db.WithContext(ctx), outbox.DomainEvent{
		EventType:     n.Type,
		AggregateType: enums.AggregateOrder,
		AggregateID:   n.Payload.OrderID,
		Data:          n.Payload,
		OccurredAt:    n.Payload.OccurredAt,
	})
}

type kafkaProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink produces notifications to a Kafka topic keyed by order id, so one
// order's notifications stay ordered within a partition.
type KafkaSink struct {
	producer kafkaProducer
	topic    string
}

// NewKafkaClient builds a franz-go client from config.
func NewKafkaClient(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.NotificationTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return client, nil
}

// NewKafkaSink builds a sink over a producer.
func NewKafkaSink(producer kafkaProducer, topic string) (*KafkaSink, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (s *KafkaSink) Notify(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(n.Payload.OrderID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "notification_type", Value: []byte(n.Type)},
			{Key: "recipient_id", Value: []byte(n.UserID.String())},
		},
	}
	return s.producer.ProduceSync(ctx, record).FirstErr()
}

// LogSink writes notifications to the service log. It is the default in dev.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	if s.logg == nil {
		return nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"notification_type": n.Type,
		"recipient_id":      n.UserID.String(),
		"order_id":          n.Payload.OrderID.String(),
		"status":            n.Payload.Status,
	}), "notification")
	return nil
}
