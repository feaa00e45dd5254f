package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/idempotency"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/metrics"
)

const (
	leaseScope          = "stripe-webhook"
	paymentEventsUnique = "ux_payment_events_event_id"
)

var errConcurrentDelivery = pkgerrors.New(pkgerrors.CodeDuplicateEvent, "event recorded by a concurrent delivery")

type ReconcilerParams struct {
	TransactionRunner db.TxRunner
	Repo              Repository
	Orders            OrderStore
	Verifier          Verifier
	// Leases is optional; without it only the unique row deduplicates.
	Leases  *idempotency.Manager
	Metrics *metrics.WebhookMetrics
	Logger  *logger.Logger
}

// Reconciler turns verified provider webhooks into order state changes.
// Each event is applied at most once: the payment_events row carrying its
// outcome is inserted in the same transaction as the side effects.
type Reconciler struct {
	tx       db.TxRunner
	repo     Repository
	orders   OrderStore
	verifier Verifier
	leases   leaser
	metrics  *metrics.WebhookMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payment event repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order store required")
	}
	if params.Verifier == nil {
		return nil, fmt.Errorf("signature verifier required")
	}
	r := &Reconciler{
		tx:       params.TransactionRunner,
		repo:     params.Repo,
		orders:   params.Orders,
		verifier: params.Verifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if params.Leases != nil {
		r.leases = params.Leases
	}
	return r, nil
}

// HandleWebhook verifies, deduplicates and applies one delivery. Redeliveries
// of an already processed event return the cached Result with Duplicate set.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*Result, error) {
	event, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		r.metrics.Observe("unknown", "invalid_signature")
		r.warn(ctx, fmt.Sprintf("stripe webhook rejected: %v", err))
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "verify webhook signature")
	}
	if event.ID == "" || event.Data == nil {
		r.metrics.Observe("unknown", "invalid_payload")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id and data required")
	}

	eventType := Classify(event.Type)
	if r.logg != nil {
		ctx = r.logg.WithEventID(ctx, event.ID)
		ctx = r.logg.WithField(ctx, "event_type", string(event.Type))
	}

	release, err := r.acquire(ctx, event.ID)
	if err != nil {
		r.metrics.Observe(string(eventType), "in_flight")
		return nil, err
	}
	defer release()

	var result *Result
	err = r.tx.InTx(ctx, func(tx *db.Tx) error {
		repo := r.repo.WithTx(tx.DB())
		existing, err := repo.FindByEventID(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment event")
		}
		if existing != nil {
			cached, err := decodeResult(existing)
			if err != nil {
				return err
			}
			result = cached
			return nil
		}

		applied, err := r.dispatch(ctx, tx, eventType, &event)
		if err != nil {
			return err
		}
		applied.EventID = event.ID
		applied.EventType = eventType
		applied.ProviderType = string(event.Type)

		raw, err := json.Marshal(applied)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook result")
		}
		record := &models.PaymentEvent{
			EventID:      event.ID,
			EventType:    eventType,
			ProviderType: string(event.Type),
			OrderID:      applied.OrderID,
			Payload:      json.RawMessage(payload),
			Result:       raw,
			ProcessedAt:  r.now(),
		}
		if err := repo.Create(ctx, record); err != nil {
			if db.IsUniqueViolation(err, paymentEventsUnique) {
				return errConcurrentDelivery
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment event")
		}
		result = applied
		return nil
	})
	if err != nil {
		if errors.Is(err, errConcurrentDelivery) {
			// A concurrent delivery committed first; serve its outcome.
			return r.replay(ctx, event.ID, eventType)
		}
		r.observeFailure(ctx, eventType, err)
		return nil, err
	}

	if result.Duplicate {
		r.metrics.Observe(string(eventType), "duplicate")
		r.debug(ctx, "stripe event already processed")
		return result, nil
	}
	r.metrics.Observe(string(eventType), string(result.Outcome))
	if r.logg != nil {
		r.logg.Info(ctx, fmt.Sprintf("stripe event %s processed (%s)", event.ID, result.Outcome))
	}
	return result, nil
}

// Events lists the provider events recorded against an order.
func (r *Reconciler) Events(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	rows, err := r.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payment events")
	}
	return rows, nil
}

// acquire takes the in-flight lease for the event. Redis trouble only costs
// the fast path, so it is logged and processing continues.
func (r *Reconciler) acquire(ctx context.Context, eventID string) (func(), error) {
	noop := func() {}
	if r.leases == nil {
		return noop, nil
	}
	lease, ok, err := r.leases.Acquire(ctx, leaseScope, eventID)
	if err != nil {
		r.warn(ctx, fmt.Sprintf("webhook lease unavailable: %v", err))
		return noop, nil
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed").
			WithDetails(map[string]any{"event_id": eventID})
	}
	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			r.warn(ctx, fmt.Sprintf("release webhook lease: %v", err))
		}
	}, nil
}

func (r *Reconciler) replay(ctx context.Context, eventID string, eventType enums.PaymentEventType) (*Result, error) {
	existing, err := r.repo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment event")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment event vanished after unique violation")
	}
	result, err := decodeResult(existing)
	if err != nil {
		return nil, err
	}
	r.metrics.Observe(string(eventType), "duplicate")
	return result, nil
}

func decodeResult(event *models.PaymentEvent) (*Result, error) {
	result := &Result{}
	if len(event.Result) > 0 {
		if err := json.Unmarshal(event.Result, result); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode cached webhook result")
		}
	}
	if result.EventID == "" {
		result.EventID = event.EventID
		result.EventType = event.EventType
		result.ProviderType = event.ProviderType
		result.OrderID = event.OrderID
	}
	result.Duplicate = true
	return result, nil
}

func (r *Reconciler) observeFailure(ctx context.Context, eventType enums.PaymentEventType, err error) {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeOrphanEvent:
		r.metrics.Observe(string(eventType), "orphan")
		if r.logg != nil {
			r.logg.Error(r.logg.WithFields(ctx, orphanFields(eventType, err)), "orphan stripe event needs manual investigation", err)
		}
	default:
		r.metrics.Observe(string(eventType), "error")
		if r.logg != nil {
			r.logg.Error(r.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "stripe event processing failed", err)
		}
	}
}

// orphanFields lifts the event and order references out of the error so the
// log line alone is enough to find the payment in the provider dashboard.
func orphanFields(eventType enums.PaymentEventType, err error) map[string]any {
	fields := map[string]any{"stripe_event_type": string(eventType)}
	if typed := pkgerrors.As(err); typed != nil {
		if details, ok := typed.Details().(map[string]any); ok {
			for k, v := range details {
				fields[k] = v
			}
		}
	}
	return fields
}

func (r *Reconciler) warn(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Warn(ctx, msg)
	}
}

func (r *Reconciler) debug(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Debug(ctx, msg)
	}
}
