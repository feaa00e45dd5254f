package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/internal/orders"
	"github.com/angelmondragon/farmlane-backend/pkg/db"
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/idempotency"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

// Repository persists processed provider events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByEventID returns nil, nil when the event was never recorded.
	FindByEventID(ctx context.Context, eventID string) (*models.PaymentEvent, error)
	Create(ctx context.Context, event *models.PaymentEvent) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

// OrderStore is the part of the order store the reconciler drives.
type OrderStore interface {
	Lookup(ctx context.Context, tx *db.Tx, orderID uuid.UUID) (*models.Order, error)
	FindByPaymentIntent(ctx context.Context, tx *db.Tx, paymentIntentID string) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, tx *db.Tx, orderID uuid.UUID, status enums.PaymentStatus, refs orders.ProviderRefs, actor types.Actor) (*models.Order, error)
	AttachPaymentRefs(ctx context.Context, tx *db.Tx, orderID uuid.UUID, refs orders.ProviderRefs) (*models.Order, error)
	Cancel(ctx context.Context, tx *db.Tx, orderID uuid.UUID, actor types.Actor, reason string) (*models.Order, error)
}

// Verifier authenticates a webhook body against its signature header.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (stripe.Event, error)
}

type leaser interface {
	Acquire(ctx context.Context, scope, id string) (*idempotency.Lease, bool, error)
}
