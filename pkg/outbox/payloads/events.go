package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// OrderNotification is the data block of every order notification event.
// Optional fields are populated per event type.
type OrderNotification struct {
	RecipientID    uuid.UUID           `json:"recipient_id"`
	OrderID        uuid.UUID           `json:"order_id"`
	Status         enums.OrderStatus   `json:"status"`
	PreviousStatus *enums.OrderStatus  `json:"previous_status,omitempty"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	TotalCents     int64               `json:"total_cents"`
	Reason         string              `json:"reason,omitempty"`
	TrackingNumber string              `json:"tracking_number,omitempty"`
	AmountCents    int64               `json:"amount_cents,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}
