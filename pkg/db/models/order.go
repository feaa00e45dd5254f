package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

// Order is the buyer-facing aggregate. Money is stored in cents and
// TotalCents always equals the sum of its components.
type Order struct {
	ID                        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID                   uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status                    enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	PaymentStatus             enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	SubtotalCents             int64               `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents          int64               `gorm:"column:platform_fee_cents;not null;default:0"`
	ShippingFeeCents          int64               `gorm:"column:shipping_fee_cents;not null;default:0"`
	TaxCents                  int64               `gorm:"column:tax_cents;not null;default:0"`
	TotalCents                int64               `gorm:"column:total_cents;not null"`
	RefundedCents             int64               `gorm:"column:refunded_cents;not null;default:0"`
	ShippingAddress           types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	CheckoutSessionID         *string             `gorm:"column:checkout_session_id;uniqueIndex"`
	CheckoutURL               *string             `gorm:"column:checkout_url"`
	PaymentIntentID           *string             `gorm:"column:payment_intent_id;uniqueIndex"`
	TrackingNumber            *string             `gorm:"column:tracking_number"`
	CancellationReason        *string             `gorm:"column:cancellation_reason"`
	CancellationRequestedAt   *time.Time          `gorm:"column:cancellation_requested_at"`
	CancellationRequestReason *string             `gorm:"column:cancellation_request_reason"`
	DeliveredAt               *time.Time          `gorm:"column:delivered_at"`
	CancelledAt               *time.Time          `gorm:"column:cancelled_at"`
	Items                     []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt                 time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.RecomputeTotal()
	return nil
}

// RecomputeTotal derives TotalCents from its components.
func (o *Order) RecomputeTotal() {
	o.TotalCents = o.SubtotalCents + o.PlatformFeeCents + o.ShippingFeeCents + o.TaxCents
}

// RefundableCents is what remains to be refunded.
func (o *Order) RefundableCents() int64 {
	return o.TotalCents - o.RefundedCents
}

// HasOpenCancellationRequest reports whether a buyer asked to cancel and no admin resolved it yet.
func (o *Order) HasOpenCancellationRequest() bool {
	return o.CancellationRequestedAt != nil
}
