package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/internal/notifications"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

// Service is the order store. Every write takes the caller's unit of work,
// locks the order row, and appends status history in the same transaction.
type Service interface {
	Create(ctx context.Context, tx *db.Tx, order *models.Order, actor types.Actor) (*models.Order, error)
	Transition(ctx context.Context, tx *db.Tx, orderID uuid.UUID, status enums.OrderStatus, actor types.Actor, notes string, metadata map[string]any) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, tx *db.Tx, orderID uuid.UUID, status enums.PaymentStatus, refs ProviderRefs, actor types.Actor) (*models.Order, error)
	AttachPaymentRefs(ctx context.Context, tx *db.Tx, orderID uuid.UUID, refs ProviderRefs) (*models.Order, error)
	Cancel(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, reason string) (*models.Order, error)
	RequestCancellation(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, reason string) (*models.Order, error)
	ResolveCancellation(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, approve bool, notes string) (*models.Order, error)
	UpdateItemFulfillment(ctx context.Context, tx *db.Tx, itemID uuid.UUID, status enums.FulfillmentStatus, actor types.Actor, trackingNumber string) (*models.Order, error)
	Refund(ctx context.Context, tx *db.Tx, orderID uuid.UUID, amountCents int64, actor types.Actor, reason string) (*models.Order, error)
	UpdateShippingAddress(ctx context.Context, tx *db.Tx, orderID uuid.UUID, address types.Address) (*models.Order, error)
	AttachCheckoutSession(ctx context.Context, tx *db.Tx, orderID uuid.UUID, sessionID, checkoutURL string) (*models.Order, error)
	Lookup(ctx context.Context, tx *db.Tx, orderID uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, tx *db.Tx, paymentIntentID string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error)
	History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOpenCancellationRequests(ctx context.Context) ([]models.Order, error)
}

type service struct {
	repo      Repository
	inventory InventoryReleaser
	notifier  notifications.Notifier
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order store. A nil notifier discards notifications.
func NewService(repo Repository, inventory InventoryReleaser, notifier notifications.Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if notifier == nil {
		notifier = notifications.Discard{}
	}
	return &service{
		repo:      repo,
		inventory: inventory,
		notifier:  notifier,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create inserts a PENDING order with its items and the opening history row.
// Stock reservation is the caller's job, inside the same transaction.
func (s *service) Create(ctx context.Context, tx *db.Tx, order *models.Order, actor types.Actor) (*models.Order, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order operations require a transaction")
	}
	if order == nil || len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	var subtotal int64
	for i := range order.Items {
		item := &order.Items[i]
		if item.Quantity <= 0 || item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order items need a positive quantity and a non-negative price")
		}
		item.LineTotalCents = item.UnitPriceCents * item.Quantity
		subtotal += item.LineTotalCents
	}
	order.SubtotalCents = subtotal
	order.Status = enums.OrderStatusPending
	order.PaymentStatus = enums.PaymentStatusUnpaid
	order.RecomputeTotal()

	repo := s.repo.WithTx(tx.DB())
	if err := repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	if err := s.appendHistory(ctx, repo, order.ID, nil, enums.OrderStatusPending, actor, "Order created", map[string]any{
		"total_cents": order.TotalCents,
		"item_count":  len(order.Items),
	}); err != nil {
		return nil, err
	}
	s.schedule(tx, enums.NotificationTypeOrderCreated, order, nil, "", 0)
	return order, nil
}

func (s *service) Transition(ctx context.Context, tx *db.Tx, orderID uuid.UUID, status enums.OrderStatus, actor types.Actor, notes string, metadata map[string]any) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", status)
	}
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.transitionLocked(ctx, tx, repo, order, status, actor, notes, metadata); err != nil {
		return nil, err
	}
	return order, nil
}

// transitionLocked applies one table transition to an order the caller has
// already locked, keeping the struct in sync with what was written.
func (s *service) transitionLocked(ctx context.Context, tx *db.Tx, repo Repository, order *models.Order, target enums.OrderStatus, actor types.Actor, notes string, metadata map[string]any) error {
	if !CanTransition(order.Status, target) {
		return invalidTransition(order.Status, target)
	}

	now := s.now()
	notes = strings.TrimSpace(notes)
	updates := map[string]any{"status": target, "updated_at": now}
	switch target {
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
	case enums.OrderStatusCancelled:
		if notes == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
		}
		updates["cancelled_at"] = now
		updates["cancellation_reason"] = notes
		updates["cancellation_requested_at"] = nil
		updates["cancellation_request_reason"] = nil
	case enums.OrderStatusShipped:
		if tracking, ok := metadata["tracking_number"].(string); ok && strings.TrimSpace(tracking) != "" {
			updates["tracking_number"] = strings.TrimSpace(tracking)
		}
	}
	if target != enums.OrderStatusCancelled {
		metadata = supersedeCancellationRequest(order, target, updates, metadata)
	}

	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	previous := order.Status
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
		order.CancellationReason = &notes
	case enums.OrderStatusShipped:
		if tracking, ok := updates["tracking_number"].(string); ok {
			order.TrackingNumber = &tracking
		}
	}

	if _, cleared := updates["cancellation_requested_at"]; cleared {
		order.CancellationRequestedAt = nil
		order.CancellationRequestReason = nil
	}

	if err := s.appendHistory(ctx, repo, order.ID, &previous, target, actor, notes, metadata); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"from":       previous,
			"to":         target,
			"actor_role": actor.Role,
		})
		s.logg.Info(logCtx, "order status changed")
	}

	reason := ""
	if target == enums.OrderStatusCancelled {
		reason = notes
	}
	s.schedule(tx, enums.NotificationTypeOrderStatusChanged, order, &previous, reason, 0)
	return nil
}

// supersedeCancellationRequest closes an open buyer request when the order
// reaches a terminal status other than CANCELLED, so no request outlives the
// order it was about.
func supersedeCancellationRequest(order *models.Order, target enums.OrderStatus, updates, metadata map[string]any) map[string]any {
	if !target.IsTerminal() || !order.HasOpenCancellationRequest() {
		return metadata
	}
	updates["cancellation_requested_at"] = nil
	updates["cancellation_request_reason"] = nil
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["cancellation_request_resolved"] = "superseded"
	return out
}

// UpdatePaymentStatus records the provider's view of the payment. Confirming
// payment on a PENDING order confirms the order in the same transaction.
func (s *service) UpdatePaymentStatus(ctx context.Context, tx *db.Tx, orderID uuid.UUID, status enums.PaymentStatus, refs ProviderRefs, actor types.Actor) (*models.Order, error) {
	switch status {
	case enums.PaymentStatusPaid, enums.PaymentStatusFailed:
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund states are recorded by Refund")
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status %q", status)
	}

	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	updates, err := mergeRefs(order, refs)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == status && len(updates) == 0 {
		return order, nil
	}

	switch {
	case status == enums.PaymentStatusFailed && order.PaymentStatus.IsCaptured():
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already captured").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	case status == enums.PaymentStatusPaid && order.PaymentStatus != enums.PaymentStatusPaid && order.PaymentStatus.IsRefund():
		// A late success never undoes a recorded refund.
		status = order.PaymentStatus
	}

	previousPayment := order.PaymentStatus
	now := s.now()
	updates["payment_status"] = status
	updates["updated_at"] = now
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment status")
	}
	order.PaymentStatus = status
	order.UpdatedAt = now

	if previousPayment == status {
		return order, nil
	}

	switch status {
	case enums.PaymentStatusPaid:
		metadata := refsMetadata(order)
		switch order.Status {
		case enums.OrderStatusPending:
			if err := s.transitionLocked(ctx, tx, repo, order, enums.OrderStatusConfirmed, types.SystemActor(), "payment confirmed", metadata); err != nil {
				return nil, err
			}
		case enums.OrderStatusCancelled:
			metadata["refund_required"] = true
			if err := s.appendHistory(ctx, repo, order.ID, &order.Status, order.Status, actor, "payment received after cancellation", metadata); err != nil {
				return nil, err
			}
		}
	case enums.PaymentStatusFailed:
		s.schedule(tx, enums.NotificationTypePaymentFailed, order, nil, "payment failed", 0)
	}
	return order, nil
}

// mergeRefs fills provider references that are not yet stored. A reference
// that disagrees with the stored one is a conflict.
func mergeRefs(order *models.Order, refs ProviderRefs) (map[string]any, error) {
	updates := map[string]any{}
	apply := func(column, incoming string, stored **string) error {
		incoming = strings.TrimSpace(incoming)
		if incoming == "" {
			return nil
		}
		if *stored != nil {
			if **stored == incoming {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a different payment reference").
				WithDetails(map[string]any{"field": column, "stored": **stored, "incoming": incoming})
		}
		updates[column] = incoming
		value := incoming
		*stored = &value
		return nil
	}
	if err := apply("checkout_session_id", refs.CheckoutSessionID, &order.CheckoutSessionID); err != nil {
		return nil, err
	}
	if err := apply("payment_intent_id", refs.PaymentIntentID, &order.PaymentIntentID); err != nil {
		return nil, err
	}
	return updates, nil
}

func refsMetadata(order *models.Order) map[string]any {
	out := map[string]any{}
	if order.CheckoutSessionID != nil {
		out["checkout_session_id"] = *order.CheckoutSessionID
	}
	if order.PaymentIntentID != nil {
		out["payment_intent_id"] = *order.PaymentIntentID
	}
	return out
}

// Cancel moves the order to CANCELLED and returns its reservation to stock.
// Shipped goods are not restocked automatically.
func (s *service) Cancel(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, reason string) (*models.Order, error) {
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.cancelLocked(ctx, tx, repo, order, actor, reason, nil); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) cancelLocked(ctx context.Context, tx *db.Tx, repo Repository, order *models.Order, actor types.Actor, reason string, extra map[string]any) error {
	previous := order.Status
	var metadata map[string]any
	if len(extra) > 0 || order.PaymentStatus.IsCaptured() {
		metadata = make(map[string]any, len(extra)+1)
		for k, v := range extra {
			metadata[k] = v
		}
		if order.PaymentStatus.IsCaptured() {
			metadata["refund_required"] = true
		}
	}
	if err := s.transitionLocked(ctx, tx, repo, order, enums.OrderStatusCancelled, actor, reason, metadata); err != nil {
		return err
	}
	if previous == enums.OrderStatusShipped {
		return nil
	}
	if _, err := s.inventory.ReleaseOrderInventory(ctx, tx, order.ID, "order cancelled: "+strings.TrimSpace(reason), actor.IDRef()); err != nil {
		return err
	}
	return nil
}

// RequestCancellation applies the buyer cancellation policy: PENDING orders
// cancel at once, later ones record a request for an admin to resolve.
func (s *service) RequestCancellation(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, reason string) (*models.Order, error) {
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "requested by buyer"
	}

	switch order.Status {
	case enums.OrderStatusPending:
		if err := s.cancelLocked(ctx, tx, repo, order, actor, reason, nil); err != nil {
			return nil, err
		}
		return order, nil
	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusShipped:
	default:
		return nil, invalidTransition(order.Status, enums.OrderStatusCancelled)
	}

	if order.HasOpenCancellationRequest() {
		return order, nil
	}

	now := s.now()
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"cancellation_requested_at":   now,
		"cancellation_request_reason": reason,
		"updated_at":                  now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record cancellation request")
	}
	order.CancellationRequestedAt = &now
	order.CancellationRequestReason = &reason
	order.UpdatedAt = now

	if err := s.appendHistory(ctx, repo, order.ID, &order.Status, order.Status, actor, reason, map[string]any{
		"cancellation_requested": true,
	}); err != nil {
		return nil, err
	}
	s.schedule(tx, enums.NotificationTypeCancellationRequested, order, nil, reason, 0)
	return order, nil
}

// ResolveCancellation closes an open buyer request. Approval cancels the order.
func (s *service) ResolveCancellation(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, approve bool, notes string) (*models.Order, error) {
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasOpenCancellationRequest() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no open cancellation request")
	}

	notes = strings.TrimSpace(notes)
	if approve {
		reason := notes
		if reason == "" && order.CancellationRequestReason != nil {
			reason = *order.CancellationRequestReason
		}
		if reason == "" {
			reason = "cancellation request approved"
		}
		if err := s.cancelLocked(ctx, tx, repo, order, actor, reason, map[string]any{
			"cancellation_request_resolved": "approved",
		}); err != nil {
			return nil, err
		}
		return order, nil
	}

	if notes == "" {
		notes = "cancellation request denied"
	}
	now := s.now()
	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"cancellation_requested_at":   nil,
		"cancellation_request_reason": nil,
		"updated_at":                  now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cancellation request")
	}
	order.CancellationRequestedAt = nil
	order.CancellationRequestReason = nil
	order.UpdatedAt = now

	if err := s.appendHistory(ctx, repo, order.ID, &order.Status, order.Status, actor, notes, map[string]any{
		"cancellation_request_resolved": "denied",
	}); err != nil {
		return nil, err
	}
	s.schedule(tx, enums.NotificationTypeOrderStatusChanged, order, &order.Status, notes, 0)
	return order, nil
}

// UpdateItemFulfillment moves one item forward and then walks the order along
// the forward path as far as its slowest item allows.
func (s *service) UpdateItemFulfillment(ctx context.Context, tx *db.Tx, itemID uuid.UUID, status enums.FulfillmentStatus, actor types.Actor, trackingNumber string) (*models.Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid fulfillment status %q", status)
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order operations require a transaction")
	}
	item, err := s.repo.WithTx(tx.DB()).FindItem(ctx, itemID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order item")
	}

	repo, order, err := s.lock(ctx, tx, item.OrderID)
	if err != nil {
		return nil, err
	}
	// Re-read under the order lock.
	item, err = repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload order item")
	}

	switch order.Status {
	case enums.OrderStatusConfirmed, enums.OrderStatusProcessing, enums.OrderStatusShipped:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not open for fulfillment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if status.Rank() <= item.FulfillmentStatus.Rank() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "item fulfillment can only move forward").
			WithDetails(map[string]any{"from": item.FulfillmentStatus, "to": status})
	}

	trackingNumber = strings.TrimSpace(trackingNumber)
	updates := map[string]any{"fulfillment_status": status, "updated_at": s.now()}
	if trackingNumber != "" {
		updates["tracking_number"] = trackingNumber
	}
	if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update item fulfillment")
	}

	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order items")
	}
	target, ok := orderStatusForFulfillment(slowestFulfillment(items))
	if !ok {
		return order, nil
	}
	for statusRank(order.Status) < statusRank(target) {
		next := forwardPath[statusRank(order.Status)+1]
		metadata := map[string]any{
			"item_id":            item.ID.String(),
			"fulfillment_status": status,
		}
		if next == enums.OrderStatusShipped && trackingNumber != "" {
			metadata["tracking_number"] = trackingNumber
		}
		notes := "all items " + strings.ToLower(string(next))
		if err := s.transitionLocked(ctx, tx, repo, order, next, actor, notes, metadata); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func slowestFulfillment(items []models.OrderItem) enums.FulfillmentStatus {
	slowest := enums.FulfillmentStatusDelivered
	for _, item := range items {
		if item.FulfillmentStatus.Rank() < slowest.Rank() {
			slowest = item.FulfillmentStatus
		}
	}
	return slowest
}

// Refund records money returned to the buyer. A refund of the full remaining
// balance moves the order to REFUNDED, except for cancelled orders which keep
// their status.
func (s *service) Refund(ctx context.Context, tx *db.Tx, orderID uuid.UUID, amountCents int64, actor types.Actor, reason string) (*models.Order, error) {
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.PaymentStatus.IsCaptured() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no captured payment to refund").
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}
	if amountCents > order.RefundableCents() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds refundable balance").
			WithDetails(map[string]any{"refundable_cents": order.RefundableCents(), "requested_cents": amountCents})
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "refund issued"
	}

	refunded := order.RefundedCents + amountCents
	full := refunded == order.TotalCents
	payment := enums.PaymentStatusPartiallyRefunded
	if full {
		payment = enums.PaymentStatusRefunded
	}

	previous := order.Status
	now := s.now()
	updates := map[string]any{
		"refunded_cents": refunded,
		"payment_status": payment,
		"updated_at":     now,
	}
	metadata := map[string]any{
		"refund_amount":  amountCents,
		"refunded_total": refunded,
	}
	if full && previous != enums.OrderStatusCancelled {
		updates["status"] = enums.OrderStatusRefunded
		metadata = supersedeCancellationRequest(order, enums.OrderStatusRefunded, updates, metadata)
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record refund")
	}
	if _, cleared := updates["cancellation_requested_at"]; cleared {
		order.CancellationRequestedAt = nil
		order.CancellationRequestReason = nil
	}
	order.RefundedCents = refunded
	order.PaymentStatus = payment
	order.UpdatedAt = now
	if status, ok := updates["status"].(enums.OrderStatus); ok {
		order.Status = status
	}

	if err := s.appendHistory(ctx, repo, order.ID, &previous, order.Status, actor, reason, metadata); err != nil {
		return nil, err
	}
	if full && (previous == enums.OrderStatusConfirmed || previous == enums.OrderStatusProcessing) {
		if _, err := s.inventory.ReleaseOrderInventory(ctx, tx, order.ID, "order refunded: "+reason, actor.IDRef()); err != nil {
			return nil, err
		}
	}
	s.schedule(tx, enums.NotificationTypeRefundIssued, order, &previous, reason, amountCents)
	return order, nil
}

// UpdateShippingAddress is only allowed while the order is PENDING.
func (s *service) UpdateShippingAddress(ctx context.Context, tx *db.Tx, orderID uuid.UUID, address types.Address) (*models.Order, error) {
	address = address.Normalize()
	if err := address.Validate(); err != nil {
		return nil, err
	}
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping address is locked once the order leaves PENDING").
			WithDetails(map[string]any{"status": order.Status})
	}
	if err := repo.UpdateShippingAddress(ctx, order.ID, address, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update shipping address")
	}
	order.ShippingAddress = address
	return order, nil
}

// AttachCheckoutSession stores the provider checkout session for a PENDING order.
func (s *service) AttachCheckoutSession(ctx context.Context, tx *db.Tx, orderID uuid.UUID, sessionID, checkoutURL string) (*models.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is only available for pending orders")
	}
	if order.CheckoutSessionID != nil {
		if *order.CheckoutSessionID == sessionID {
			return order, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a checkout session")
	}

	now := s.now()
	updates := map[string]any{"checkout_session_id": sessionID, "updated_at": now}
	if checkoutURL != "" {
		updates["checkout_url"] = checkoutURL
		order.CheckoutURL = &checkoutURL
	}
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach checkout session")
	}
	order.CheckoutSessionID = &sessionID
	order.UpdatedAt = now
	return order, nil
}

// AttachPaymentRefs stores provider references without touching the payment
// status, so a later event that lacks order metadata can still be matched.
func (s *service) AttachPaymentRefs(ctx context.Context, tx *db.Tx, orderID uuid.UUID, refs ProviderRefs) (*models.Order, error) {
	repo, order, err := s.lock(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	updates, err := mergeRefs(order, refs)
	if err != nil || len(updates) == 0 {
		return order, err
	}
	now := s.now()
	updates["updated_at"] = now
	if err := repo.UpdateOrder(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach payment references")
	}
	order.UpdatedAt = now
	return order, nil
}

func (s *service) Lookup(ctx context.Context, tx *db.Tx, orderID uuid.UUID) (*models.Order, error) {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx.DB())
	}
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) FindByPaymentIntent(ctx context.Context, tx *db.Tx, paymentIntentID string) (*models.Order, error) {
	if strings.TrimSpace(paymentIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx.DB())
	}
	order, err := repo.FindOrderByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return nil, notFoundOr(err, "load order by payment intent")
	}
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.Lookup(ctx, nil, orderID)
}

func (s *service) GetWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "load order")
	}
	return order, nil
}

func (s *service) GetItem(ctx context.Context, itemID uuid.UUID) (*models.OrderItem, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order item")
	}
	return item, nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list order history")
	}
	return rows, nil
}

func (s *service) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list buyer orders")
	}
	return list, nil
}

func (s *service) ListOpenCancellationRequests(ctx context.Context) ([]models.Order, error) {
	rows, err := s.repo.ListOpenCancellationRequests(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cancellation requests")
	}
	return rows, nil
}

func (s *service) lock(ctx context.Context, tx *db.Tx, orderID uuid.UUID) (Repository, *models.Order, error) {
	if tx == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "order operations require a transaction")
	}
	repo := s.repo.WithTx(tx.DB())
	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		return nil, nil, notFoundOr(err, "lock order")
	}
	return repo, order, nil
}

func (s *service) appendHistory(ctx context.Context, repo Repository, orderID uuid.UUID, previous *enums.OrderStatus, status enums.OrderStatus, actor types.Actor, notes string, metadata map[string]any) error {
	seq, err := repo.NextHistorySequence(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "next history sequence")
	}
	role := actor.Role
	if role == "" {
		role = enums.ActorRoleSystem
	}
	var prev *enums.OrderStatus
	if previous != nil {
		value := *previous
		prev = &value
	}
	row := &models.OrderStatusHistory{
		OrderID:        orderID,
		Sequence:       seq,
		PreviousStatus: prev,
		Status:         status,
		ActorID:        actor.IDRef(),
		ActorRole:      role,
		Notes:          notes,
		Metadata:       metadata,
	}
	if err := repo.AppendHistory(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append order history")
	}
	return nil
}

// schedule queues a buyer notification that is only dispatched if tx commits.
// The payload is captured now so later writes in the same tx do not leak in.
func (s *service) schedule(tx *db.Tx, typ enums.NotificationType, order *models.Order, previous *enums.OrderStatus, reason string, amountCents int64) {
	payload := payloads.OrderNotification{
		RecipientID:   order.BuyerID,
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalCents:    order.TotalCents,
		Reason:        reason,
		AmountCents:   amountCents,
		OccurredAt:    s.now(),
	}
	if previous != nil {
		value := *previous
		payload.PreviousStatus = &value
	}
	if order.TrackingNumber != nil {
		payload.TrackingNumber = *order.TrackingNumber
	}
	n := notifications.Notification{UserID: order.BuyerID, Type: typ, Payload: payload}
	notifier := s.notifier
	tx.AfterCommit(func(ctx context.Context) {
		notifier.Dispatch(ctx, n)
	})
}

func notFoundOr(err error, op string) error {
	if isNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
