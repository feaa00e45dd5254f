package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	stripeclient "github.com/angelmondragon/farmlane-backend/pkg/stripe"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

const eventTypeRefundCreated stripe.EventType = "refund.created"

// Classify maps a provider event type onto the closed set the reconciler handles.
func Classify(t stripe.EventType) enums.PaymentEventType {
	switch t {
	case stripe.EventTypeCheckoutSessionCompleted:
		return enums.PaymentEventTypeCheckoutSessionCompleted
	case stripe.EventTypePaymentIntentSucceeded:
		return enums.PaymentEventTypePaymentSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		return enums.PaymentEventTypePaymentFailed
	case stripe.EventTypeChargeRefunded, eventTypeRefundCreated:
		return enums.PaymentEventTypeRefundCreated
	case stripe.EventTypeChargeDisputeCreated:
		return enums.PaymentEventTypeDisputeCreated
	default:
		return enums.PaymentEventTypeUnhandled
	}
}

func (r *Reconciler) dispatch(ctx context.Context, tx *db.Tx, eventType enums.PaymentEventType, event *stripe.Event) (*Result, error) {
	switch eventType {
	case enums.PaymentEventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decode(event, &session); err != nil {
			return nil, err
		}
		return r.checkoutCompleted(ctx, tx, event.ID, &session)
	case enums.PaymentEventTypePaymentSucceeded:
		var intent stripe.PaymentIntent
		if err := decode(event, &intent); err != nil {
			return nil, err
		}
		order, err := r.requireOrder(ctx, tx, event.ID, intent.Metadata, intent.ID)
		if err != nil {
			return nil, err
		}
		return r.markPaid(ctx, tx, order, orders.ProviderRefs{PaymentIntentID: intent.ID})
	case enums.PaymentEventTypePaymentFailed:
		var intent stripe.PaymentIntent
		if err := decode(event, &intent); err != nil {
			return nil, err
		}
		return r.paymentFailed(ctx, tx, event.ID, &intent)
	case enums.PaymentEventTypeRefundCreated:
		metadata, paymentIntentID, err := refundRefs(event)
		if err != nil {
			return nil, err
		}
		return r.recordOnly(ctx, tx, metadata, paymentIntentID)
	case enums.PaymentEventTypeDisputeCreated:
		var dispute stripe.Dispute
		if err := decode(event, &dispute); err != nil {
			return nil, err
		}
		result, err := r.recordOnly(ctx, tx, dispute.Metadata, intentID(dispute.PaymentIntent))
		if err != nil {
			return nil, err
		}
		if result.OrderID != nil {
			r.warn(ctx, fmt.Sprintf("payment disputed for order %s", result.OrderID.String()))
		}
		return result, nil
	case enums.PaymentEventTypeUnhandled:
		return &Result{Outcome: OutcomeUnhandled}, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "no handler for payment event type %q", eventType)
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, tx *db.Tx, eventID string, session *stripe.CheckoutSession) (*Result, error) {
	metadata := session.Metadata
	if metadata[stripeclient.MetadataOrderID] == "" && session.ClientReferenceID != "" {
		metadata = map[string]string{stripeclient.MetadataOrderID: session.ClientReferenceID}
	}
	order, err := r.requireOrder(ctx, tx, eventID, metadata, intentID(session.PaymentIntent))
	if err != nil {
		return nil, err
	}
	refs := orders.ProviderRefs{
		CheckoutSessionID: session.ID,
		PaymentIntentID:   intentID(session.PaymentIntent),
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// Delayed payment methods settle later through payment_intent.succeeded,
		// which is matched by the intent id stored here.
		updated, err := r.orders.AttachPaymentRefs(ctx, tx, order.ID, refs)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				return r.refsConflict(ctx, order, err), nil
			}
			return nil, err
		}
		return resultFor(updated, OutcomeRecorded, "checkout completed without payment"), nil
	}
	return r.markPaid(ctx, tx, order, refs)
}

func (r *Reconciler) markPaid(ctx context.Context, tx *db.Tx, order *models.Order, refs orders.ProviderRefs) (*Result, error) {
	updated, err := r.orders.UpdatePaymentStatus(ctx, tx, order.ID, enums.PaymentStatusPaid, refs, types.SystemActor())
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return r.refsConflict(ctx, order, err), nil
		}
		return nil, err
	}
	return resultFor(updated, OutcomeApplied, ""), nil
}

// refsConflict covers a second provider payment for the same order. The event
// is recorded so the extra payment can be refunded by hand.
func (r *Reconciler) refsConflict(ctx context.Context, order *models.Order, err error) *Result {
	if r.logg != nil {
		r.logg.Error(r.logg.WithOrderID(ctx, order.ID.String()), "payment references conflict with order", err)
	}
	return resultFor(order, OutcomeConflict, "payment references conflict")
}

// paymentFailed records the failure while the order is still unpaid and
// cancels a PENDING order, which releases its reservation.
func (r *Reconciler) paymentFailed(ctx context.Context, tx *db.Tx, eventID string, intent *stripe.PaymentIntent) (*Result, error) {
	order, err := r.requireOrder(ctx, tx, eventID, intent.Metadata, intent.ID)
	if err != nil {
		return nil, err
	}
	updated, err := r.orders.UpdatePaymentStatus(ctx, tx, order.ID, enums.PaymentStatusFailed, orders.ProviderRefs{PaymentIntentID: intent.ID}, types.SystemActor())
	if err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
			return resultFor(order, OutcomeIgnored, "payment already captured"), nil
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			return resultFor(order, OutcomeIgnored, "failure for a different payment intent"), nil
		}
		return nil, err
	}
	if updated.Status != enums.OrderStatusPending {
		return resultFor(updated, OutcomeApplied, ""), nil
	}

	reason := "payment failed"
	if intent.LastPaymentError != nil && strings.TrimSpace(intent.LastPaymentError.Msg) != "" {
		reason = fmt.Sprintf("payment failed: %s", intent.LastPaymentError.Msg)
	}
	cancelled, err := r.orders.Cancel(ctx, tx, order.ID, types.SystemActor(), reason)
	if err != nil {
		return nil, err
	}
	return resultFor(cancelled, OutcomeApplied, reason), nil
}

// recordOnly correlates an informational event with an order when possible.
// Nothing on the order changes and a missing order is not an error.
func (r *Reconciler) recordOnly(ctx context.Context, tx *db.Tx, metadata map[string]string, paymentIntentID string) (*Result, error) {
	order, err := r.correlate(ctx, tx, metadata, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return &Result{Outcome: OutcomeRecorded}, nil
	}
	return resultFor(order, OutcomeRecorded, ""), nil
}

func (r *Reconciler) requireOrder(ctx context.Context, tx *db.Tx, eventID string, metadata map[string]string, paymentIntentID string) (*models.Order, error) {
	order, err := r.correlate(ctx, tx, metadata, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeOrphanEvent, "event references no known order").
			WithDetails(map[string]any{
				"event_id":          eventID,
				"order_id":          metadata[stripeclient.MetadataOrderID],
				"payment_intent_id": paymentIntentID,
			})
	}
	return order, nil
}

// correlate finds the order by metadata.order_id, then by payment intent.
// It returns nil, nil when neither matches.
func (r *Reconciler) correlate(ctx context.Context, tx *db.Tx, metadata map[string]string, paymentIntentID string) (*models.Order, error) {
	if raw := strings.TrimSpace(metadata[stripeclient.MetadataOrderID]); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			order, err := r.orders.Lookup(ctx, tx, id)
			switch {
			case err == nil:
				return order, nil
			case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				return nil, err
			}
		}
	}
	if paymentIntentID == "" {
		return nil, nil
	}
	order, err := r.orders.FindByPaymentIntent(ctx, tx, paymentIntentID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func refundRefs(event *stripe.Event) (map[string]string, string, error) {
	if event.Type == stripe.EventTypeChargeRefunded {
		var charge stripe.Charge
		if err := decode(event, &charge); err != nil {
			return nil, "", err
		}
		return charge.Metadata, intentID(charge.PaymentIntent), nil
	}
	var refund stripe.Refund
	if err := decode(event, &refund); err != nil {
		return nil, "", err
	}
	return refund.Metadata, intentID(refund.PaymentIntent), nil
}

func decode(event *stripe.Event, into any) error {
	if err := json.Unmarshal(event.Data.Raw, into); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("decode %s payload", event.Type))
	}
	return nil
}

func intentID(intent *stripe.PaymentIntent) string {
	if intent == nil {
		return ""
	}
	return intent.ID
}

func resultFor(order *models.Order, outcome Outcome, reason string) *Result {
	id := order.ID
	return &Result{
		Outcome:       outcome,
		OrderID:       &id,
		OrderStatus:   order.Status,
		PaymentStatus: order.PaymentStatus,
		Reason:        reason,
	}
}
