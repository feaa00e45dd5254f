package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	stripeclient "github.com/angelmondragon/farmlane-backend/pkg/stripe"
)

// CheckoutSessionCreator opens a hosted payment page for an order.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, in stripeclient.CheckoutSessionInput) (*stripeclient.CheckoutSession, error)
}

// RefundIssuer returns money through the payment provider.
type RefundIssuer interface {
	IssueRefund(ctx context.Context, in stripeclient.RefundInput) (*stripeclient.Refund, error)
}

// PaymentEventReader exposes the reconciler's record of provider events.
type PaymentEventReader interface {
	Events(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error)
}
