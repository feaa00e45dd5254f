package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/internal/inventory"
	"github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/config"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmlane-backend/pkg/errors"
	"github.com/angelmondragon/farmlane-backend/pkg/logger"
	"github.com/angelmondragon/farmlane-backend/pkg/pagination"
	stripeclient "github.com/angelmondragon/farmlane-backend/pkg/stripe"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type ServiceParams struct {
	TransactionRunner db.TxRunner
	Orders            orders.Service
	Inventory         inventory.Service
	// Payments, Checkout and Refunds are optional. Without Checkout the
	// StartCheckout call fails with a dependency error; without Refunds a
	// refund is only recorded.
	Payments PaymentEventReader
	Checkout CheckoutSessionCreator
	Refunds  RefundIssuer
	Pricing  config.PricingConfig
	Logger   *logger.Logger
}

// Service is the entry point callers use for order operations. It resolves
// who may do what and runs each operation in one unit of work.
type Service struct {
	tx        db.TxRunner
	orders    orders.Service
	inventory inventory.Service
	payments  PaymentEventReader
	checkout  CheckoutSessionCreator
	refunds   RefundIssuer
	pricing   config.PricingConfig
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &Service{
		tx:        params.TransactionRunner,
		orders:    params.Orders,
		inventory: params.Inventory,
		payments:  params.Payments,
		checkout:  params.Checkout,
		refunds:   params.Refunds,
		pricing:   params.Pricing,
		logg:      params.Logger,
	}, nil
}

// CreateOrder prices the cart against live products and, in one transaction,
// inserts the order and reserves its stock. Any failed reservation rolls the
// whole order back.
func (s *Service) CreateOrder(ctx context.Context, actor types.Actor, input CreateOrderInput) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	buyerID := actor.UserID
	if input.BuyerID != nil && *input.BuyerID != uuid.Nil && *input.BuyerID != actor.UserID {
		if !actor.IsAdmin() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyers can only order for themselves")
		}
		buyerID = *input.BuyerID
	}

	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	ids := make([]uuid.UUID, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, line := range input.Items {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product line").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	address := input.ShippingAddress.Normalize()
	if err := address.Validate(); err != nil {
		return nil, err
	}

	products, err := s.inventory.Products(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		BuyerID:         buyerID,
		ShippingAddress: address,
		Items:           make([]models.OrderItem, 0, len(input.Items)),
	}
	var subtotal int64
	for _, line := range input.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if product.Status != enums.ProductStatusActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available for purchase").
				WithDetails(map[string]any{"product_id": product.ID, "status": product.Status})
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      product.ID,
			FarmerID:       product.FarmerID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: product.PriceCents,
		})
		subtotal += product.PriceCents * line.Quantity
	}
	order.PlatformFeeCents = types.ApplyRate(subtotal, s.pricing.PlatformFee())
	order.ShippingFeeCents = s.pricing.ShippingFlatCents
	order.TaxCents = types.ApplyRate(subtotal, s.pricing.Tax())

	var created *models.Order
	err = s.tx.InTx(ctx, func(tx *db.Tx) error {
		row, err := s.orders.Create(ctx, tx, order, actor)
		if err != nil {
			return err
		}
		if err := s.inventory.ProcessOrderInventory(ctx, tx, row); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(s.logg.WithUserID(ctx, buyerID.String()), created.ID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order created total=%s", types.FormatCents(created.TotalCents)))
	}
	return created, nil
}

// StartCheckout opens (or returns the already opened) provider checkout page
// for a PENDING order.
func (s *Service) StartCheckout(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*CheckoutResult, error) {
	order, err := s.orders.GetWithItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(actor, enums.ActorRoleBuyer); err != nil {
		return nil, err
	}
	if order.BuyerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is only available for pending orders").
			WithDetails(map[string]any{"status": order.Status})
	}
	if existing := storedCheckout(order); existing != nil {
		return existing, nil
	}
	if s.checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, stripeclient.CheckoutSessionInput{
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		Lines:          checkoutLines(order),
		IdempotencyKey: "checkout-" + order.ID.String(),
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	var attached *models.Order
	err = s.tx.InTx(ctx, func(tx *db.Tx) error {
		row, err := s.orders.AttachCheckoutSession(ctx, tx, order.ID, session.ID, session.URL)
		if err != nil {
			return err
		}
		attached = row
		return nil
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, err
		}
		// A concurrent call attached its session first.
		latest, lerr := s.orders.Get(ctx, order.ID)
		if lerr != nil {
			return nil, lerr
		}
		if existing := storedCheckout(latest); existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return &CheckoutResult{OrderID: attached.ID, SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func storedCheckout(order *models.Order) *CheckoutResult {
	if order.CheckoutSessionID == nil {
		return nil
	}
	result := &CheckoutResult{OrderID: order.ID, SessionID: *order.CheckoutSessionID}
	if order.CheckoutURL != nil {
		result.CheckoutURL = *order.CheckoutURL
	}
	return result
}

func checkoutLines(order *models.Order) []stripeclient.LineItem {
	lines := make([]stripeclient.LineItem, 0, len(order.Items)+3)
	for _, item := range order.Items {
		lines = append(lines, stripeclient.LineItem{
			Name:            item.ProductName,
			UnitAmountCents: item.UnitPriceCents,
			Quantity:        item.Quantity,
		})
	}
	extras := []struct {
		name  string
		cents int64
	}{
		{"Platform fee", order.PlatformFeeCents},
		{"Shipping", order.ShippingFeeCents},
		{"Tax", order.TaxCents},
	}
	for _, extra := range extras {
		if extra.cents > 0 {
			lines = append(lines, stripeclient.LineItem{Name: extra.name, UnitAmountCents: extra.cents, Quantity: 1})
		}
	}
	return lines
}

// GetOrder returns the order with its items if the actor may see it.
func (s *Service) GetOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetWithItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOrderRead(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) OrderHistory(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.OrderStatusHistory, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.orders.History(ctx, orderID)
}

// ListOrders pages through a buyer's orders. Admins may pass any buyer id;
// buyers always see their own.
func (s *Service) ListOrders(ctx context.Context, actor types.Actor, buyerID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	if err := requireRole(actor, enums.ActorRoleBuyer, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if buyerID != uuid.Nil && buyerID != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyers can only list their own orders")
		}
		buyerID = actor.UserID
	}
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer_id required")
	}
	return s.orders.ListByBuyer(ctx, buyerID, params)
}

// RequestCancellation cancels a PENDING order outright and records a request
// for admin review on a CONFIRMED or PROCESSING one.
func (s *Service) RequestCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.withOrder(ctx, orderID, func(tx *db.Tx, order *models.Order) (*models.Order, error) {
		if err := authorizeBuyerAction(actor, order); err != nil {
			return nil, err
		}
		return s.orders.RequestCancellation(ctx, tx, orderID, actor, reason)
	})
}

func (s *Service) ResolveCancellation(ctx context.Context, actor types.Actor, orderID uuid.UUID, approve bool, notes string) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	return s.inTx(ctx, func(tx *db.Tx) (*models.Order, error) {
		return s.orders.ResolveCancellation(ctx, tx, orderID, actor, approve, notes)
	})
}

func (s *Service) UpdateShippingAddress(ctx context.Context, actor types.Actor, orderID uuid.UUID, address types.Address) (*models.Order, error) {
	return s.withOrder(ctx, orderID, func(tx *db.Tx, order *models.Order) (*models.Order, error) {
		if err := authorizeBuyerAction(actor, order); err != nil {
			return nil, err
		}
		return s.orders.UpdateShippingAddress(ctx, tx, orderID, address)
	})
}

// TransitionOrder is the admin override for moving an order along the status
// table. CANCELLED goes through the cancel path so stock is released.
func (s *Service) TransitionOrder(ctx context.Context, actor types.Actor, orderID uuid.UUID, status enums.OrderStatus, notes string) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	return s.inTx(ctx, func(tx *db.Tx) (*models.Order, error) {
		if status == enums.OrderStatusCancelled {
			return s.orders.Cancel(ctx, tx, orderID, actor, notes)
		}
		return s.orders.Transition(ctx, tx, orderID, status, actor, notes, nil)
	})
}

// UpdateItemFulfillment lets the farmer who sells an item move it along.
func (s *Service) UpdateItemFulfillment(ctx context.Context, actor types.Actor, itemID uuid.UUID, status enums.FulfillmentStatus, trackingNumber string) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleFarmer, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	item, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := authorizeFarmerResource(actor, item.FarmerID, "order item"); err != nil {
		return nil, err
	}
	return s.inTx(ctx, func(tx *db.Tx) (*models.Order, error) {
		return s.orders.UpdateItemFulfillment(ctx, tx, itemID, status, actor, trackingNumber)
	})
}

// Refund returns money to the buyer. When the order carries a payment intent
// the provider refund is issued first; the order is only updated once the
// provider accepted it.
func (s *Service) Refund(ctx context.Context, actor types.Actor, orderID uuid.UUID, amountCents int64, reason string) (*models.Order, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	order, err := s.orders.Get(ctx, orderID)
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

	ctx = s.orderCtx(ctx, orderID)
	var providerRefund *stripeclient.Refund
	if s.refunds != nil && order.PaymentIntentID != nil && *order.PaymentIntentID != "" {
		providerRefund, err = s.refunds.IssueRefund(ctx, stripeclient.RefundInput{
			PaymentIntentID: *order.PaymentIntentID,
			AmountCents:     amountCents,
			OrderID:         order.ID,
			Reason:          reason,
			IdempotencyKey:  fmt.Sprintf("refund-%s-%d-%d", order.ID, order.RefundedCents, amountCents),
		})
		if err != nil {
			if pkgerrors.As(err) != nil {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue provider refund")
		}
	}

	updated, err := s.inTx(ctx, func(tx *db.Tx) (*models.Order, error) {
		return s.orders.Refund(ctx, tx, orderID, amountCents, actor, reason)
	})
	if err != nil {
		if providerRefund != nil && s.logg != nil {
			// Money already left; the order row needs manual repair.
			logCtx := s.logg.WithField(ctx, "refund_id", providerRefund.ID)
			s.logg.Error(logCtx, "provider refund issued but order update failed", err)
		}
		return nil, err
	}
	return updated, nil
}

// AdjustStock applies a manual correction to a product's available quantity.
func (s *Service) AdjustStock(ctx context.Context, actor types.Actor, input AdjustStockInput) (*models.InventoryHistory, error) {
	if err := requireRole(actor, enums.ActorRoleFarmer, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	product, err := s.inventory.Product(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if err := authorizeFarmerResource(actor, product.FarmerID, "product"); err != nil {
		return nil, err
	}
	var entry *models.InventoryHistory
	err = s.tx.InTx(ctx, func(tx *db.Tx) error {
		row, err := s.inventory.AdjustStock(ctx, tx, inventory.StockChange{
			ProductID:  input.ProductID,
			Delta:      input.Delta,
			ChangeType: input.ChangeType,
			Reason:     strings.TrimSpace(input.Reason),
			ActorID:    actor.IDRef(),
		})
		if err != nil {
			return err
		}
		entry = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) ProductHistory(ctx context.Context, actor types.Actor, productID uuid.UUID) ([]models.InventoryHistory, error) {
	if err := requireRole(actor, enums.ActorRoleFarmer, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	product, err := s.inventory.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := authorizeFarmerResource(actor, product.FarmerID, "product"); err != nil {
		return nil, err
	}
	return s.inventory.History(ctx, productID)
}

func (s *Service) VerifyInventory(ctx context.Context, actor types.Actor, productID uuid.UUID) (*inventory.VerifyReport, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin, enums.ActorRoleSystem); err != nil {
		return nil, err
	}
	return s.inventory.Verify(ctx, productID)
}

func (s *Service) PaymentEvents(ctx context.Context, actor types.Actor, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	if err := requireRole(actor, enums.ActorRoleAdmin); err != nil {
		return nil, err
	}
	if s.payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment events unavailable")
	}
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.payments.Events(ctx, orderID)
}

// withOrder loads the order for an authorization check, then runs fn in a
// transaction. The store re-reads the row under lock, so the check only
// depends on fields that never change (buyer and items).
func (s *Service) withOrder(ctx context.Context, orderID uuid.UUID, fn func(tx *db.Tx, order *models.Order) (*models.Order, error)) (*models.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.inTx(ctx, func(tx *db.Tx) (*models.Order, error) {
		return fn(tx, order)
	})
}

func (s *Service) inTx(ctx context.Context, fn func(tx *db.Tx) (*models.Order, error)) (*models.Order, error) {
	var out *models.Order
	err := s.tx.InTx(ctx, func(tx *db.Tx) error {
		row, err := fn(tx)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) orderCtx(ctx context.Context, orderID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, orderID.String())
}
