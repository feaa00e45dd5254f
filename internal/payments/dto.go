package payments

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// Outcome is what the reconciler did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRecorded  Outcome = "recorded"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeConflict  Outcome = "conflict"
)

// Result is cached on the payment event row and replayed for redeliveries.
type Result struct {
	EventID       string                 `json:"event_id"`
	EventType     enums.PaymentEventType `json:"event_type"`
	ProviderType  string                 `json:"provider_type"`
	Outcome       Outcome                `json:"outcome"`
	OrderID       *uuid.UUID             `json:"order_id,omitempty"`
	OrderStatus   enums.OrderStatus      `json:"order_status,omitempty"`
	PaymentStatus enums.PaymentStatus    `json:"payment_status,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Duplicate     bool                   `json:"duplicate"`
}
