package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultMaxAttempts    = 10
	publishTimeout        = 15 * time.Second
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	deadLetterReportEvery = time.Minute

	reasonUndecodable = "undecodable"
	reasonExhausted   = "attempts_exhausted"
)

// delivery is what happened to one outbox row in a batch.
type delivery int

const (
	delivered delivery = iota
	retryLater
	// heldBack rows belong to an order whose earlier notification just
	// failed; they wait so subscribers never see an order's events out of order.
	heldBack
	deadLettered
)

func (d delivery) String() string {
	switch d {
	case delivered:
		return "published"
	case retryLater:
		return "retry"
	case heldBack:
		return "held_back"
	case deadLettered:
		return "dead_letter"
	default:
		return "unknown"
	}
}

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountDeadLetters(maxAttempts int) (int64, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

// publisher is the slice of a Pub/Sub topic publisher the relay drives.
// ResumePublish unblocks an ordering key after a failed publish.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
}

// Service relays order notifications from outbox_events to Pub/Sub. Messages
// carry the order id as their ordering key, and a failure for one order holds
// back that order's later rows until the next batch.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	registry     registryResolver
	metrics      *metrics.OutboxMetrics
	publishers   publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	lastReport   time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = orderedPublisherFactory(params.PubSub)
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publishers:   factory,
		batchSize:    positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

// Run polls until ctx is cancelled. Busy batches are followed immediately by
// the next one; errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		busy, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = min(wait*2, maxBackoff)
		case busy:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
			s.reportDeadLetters(ctx)
		}

		if err := sleep(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

// processBatch claims one batch under SKIP LOCKED and settles every row in
// the same transaction. It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows) > 0

		blocked := map[uuid.UUID]struct{}{}
		for _, row := range rows {
			if _, ok := blocked[row.AggregateID]; ok {
				s.observe(row, heldBack)
				continue
			}
			outcome, fields, publishErr := s.deliver(ctx, row)
			if outcome == retryLater || outcome == deadLettered {
				blocked[row.AggregateID] = struct{}{}
			}
			if err := s.settle(ctx, tx, row, outcome, fields, publishErr); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) deliver(ctx context.Context, row models.OutboxEvent) (delivery, map[string]any, error) {
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"order_id":      row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	}

	resolved, err := s.registry.Resolve(row)
	if err != nil {
		return deadLettered, fields, fmt.Errorf("%s: %w", reasonUndecodable, err)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	pub := s.publishers(resolved.Descriptor.Topic)
	if pub == nil {
		return deadLettered, fields, fmt.Errorf("%s: no publisher for topic %s", reasonUndecodable, resolved.Descriptor.Topic)
	}

	msg := notificationMessage(row, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return deadLettered, fields, fmt.Errorf("%s: publisher returned no result", reasonUndecodable)
	}
	if _, err := result.Get(publishCtx); err != nil {
		// Pub/Sub pauses an ordering key after a failure; the next batch
		// retries this order from the failed row.
		pub.ResumePublish(msg.OrderingKey)

		if registry.IsNonRetryable(err) {
			return deadLettered, fields, fmt.Errorf("%s: %w", reasonUndecodable, err)
		}
		if row.AttemptCount+1 >= s.maxAttempts {
			return deadLettered, fields, fmt.Errorf("%s: %w", reasonExhausted, err)
		}
		return retryLater, fields, err
	}
	return delivered, fields, nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, outcome delivery, fields map[string]any, publishErr error) error {
	s.observe(row, outcome)
	logCtx := s.logg.WithFields(ctx, fields)

	switch outcome {
	case delivered:
		if err := s.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		s.logg.Debug(logCtx, "order notification published")
	case retryLater:
		s.logg.Warn(s.logg.WithField(logCtx, "error", publishErr.Error()), "order notification publish failed")
		if err := s.repo.MarkFailedTx(tx, row.ID, publishErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
	case deadLettered:
		// The row stays in outbox_events with attempts pinned at the limit;
		// resetting attempt_count replays it.
		s.logg.Warn(s.logg.WithField(logCtx, "error", publishErr.Error()), "order notification dead-lettered")
		if err := s.repo.MarkTerminalTx(tx, row.ID, publishErr, s.maxAttempts); err != nil {
			return fmt.Errorf("mark dead letter %s: %w", row.ID, err)
		}
	}
	return nil
}

func (s *Service) observe(row models.OutboxEvent, outcome delivery) {
	s.metrics.ObservePublish(string(row.EventType), outcome.String())
}

// reportDeadLetters refreshes the dead-letter gauge at most once a minute.
func (s *Service) reportDeadLetters(ctx context.Context) {
	if s.metrics == nil || time.Since(s.lastReport) < deadLetterReportEvery {
		return
	}
	s.lastReport = time.Now()
	count, err := s.repo.CountDeadLetters(s.maxAttempts)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("count outbox dead letters: %v", err))
		return
	}
	s.metrics.SetDeadLetters(count)
}

// notificationMessage builds the Pub/Sub message for one row. The order id
// is the ordering key; the recipient rides along so subscribers can route
// without decoding the payload.
func notificationMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":   resolved.Envelope.EventID,
		"event_type": string(row.EventType),
		"order_id":   row.AggregateID.String(),
		"created_at": row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if n, ok := resolved.Payload.(*payloads.OrderNotification); ok && n.RecipientID != uuid.Nil {
		attrs["recipient_id"] = n.RecipientID.String()
		attrs["order_status"] = string(n.Status)
	}
	return &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  attrs,
		OrderingKey: row.AggregateID.String(),
	}
}

// orderedPublisherFactory relies on the client caching one ordered
// publisher per topic.
func orderedPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return topicPublisher{p}
	}
}

type topicPublisher struct {
	p *gcppubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

func (t topicPublisher) ResumePublish(orderingKey string) {
	t.p.ResumePublish(orderingKey)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
