package orders

import (
	"github.com/angelmondragon/farmlane-backend/pkg/db/models"
)

// ProviderRefs are the payment provider identifiers attached to an order.
// Empty fields are left untouched.
type ProviderRefs struct {
	CheckoutSessionID string
	PaymentIntentID   string
}

// OrderList is one cursor page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
