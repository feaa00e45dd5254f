package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type Order struct {
	ID                        uuid.UUID           `json:"id"`
	BuyerID                   uuid.UUID           `json:"buyer_id"`
	Status                    enums.OrderStatus   `json:"status"`
	PaymentStatus             enums.PaymentStatus `json:"payment_status"`
	SubtotalCents             int64               `json:"subtotal_cents"`
	PlatformFeeCents          int64               `json:"platform_fee_cents"`
	ShippingFeeCents          int64               `json:"shipping_fee_cents"`
	TaxCents                  int64               `json:"tax_cents"`
	TotalCents                int64               `json:"total_cents"`
	RefundedCents             int64               `json:"refunded_cents"`
	ShippingAddress           types.Address       `json:"shipping_address"`
	CheckoutURL               *string             `json:"checkout_url,omitempty"`
	TrackingNumber            *string             `json:"tracking_number,omitempty"`
	CancellationReason        *string             `json:"cancellation_reason,omitempty"`
	CancellationRequestedAt   *time.Time          `json:"cancellation_requested_at,omitempty"`
	CancellationRequestReason *string             `json:"cancellation_request_reason,omitempty"`
	DeliveredAt               *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt               *time.Time          `json:"cancelled_at,omitempty"`
	Items                     []OrderItem         `json:"items"`
	CreatedAt                 time.Time           `json:"created_at"`
	UpdatedAt                 time.Time           `json:"updated_at"`
}

type OrderItem struct {
	ID                uuid.UUID               `json:"id"`
	ProductID         uuid.UUID               `json:"product_id"`
	FarmerID          uuid.UUID               `json:"farmer_id"`
	ProductName       string                  `json:"product_name"`
	Quantity          int64                   `json:"quantity"`
	UnitPriceCents    int64                   `json:"unit_price_cents"`
	LineTotalCents    int64                   `json:"line_total_cents"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	TrackingNumber    *string                 `json:"tracking_number,omitempty"`
}

type OrderList struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type StatusHistoryEntry struct {
	Sequence       int64              `json:"sequence"`
	PreviousStatus *enums.OrderStatus `json:"previous_status,omitempty"`
	Status         enums.OrderStatus  `json:"status"`
	ActorID        *uuid.UUID         `json:"actor_id,omitempty"`
	ActorRole      enums.ActorRole    `json:"actor_role"`
	Notes          string             `json:"notes,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type InventoryEntry struct {
	ID               uuid.UUID                 `json:"id"`
	ProductID        uuid.UUID                 `json:"product_id"`
	Sequence         int64                     `json:"sequence"`
	QuantityChange   int64                     `json:"quantity_change"`
	PreviousQuantity int64                     `json:"previous_quantity"`
	NewQuantity      int64                     `json:"new_quantity"`
	ChangeType       enums.InventoryChangeType `json:"change_type"`
	Reason           string                    `json:"reason,omitempty"`
	ReferenceID      *uuid.UUID                `json:"reference_id,omitempty"`
	ActorID          *uuid.UUID                `json:"actor_id,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
}

// PaymentEvent omits the raw provider payload; admins get the outcome only.
type PaymentEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    enums.PaymentEventType `json:"event_type"`
	ProviderType string                 `json:"provider_type"`
	OrderID      *uuid.UUID             `json:"order_id,omitempty"`
	Result       json.RawMessage        `json:"result,omitempty"`
	ProcessedAt  time.Time              `json:"processed_at"`
}
