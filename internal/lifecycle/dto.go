package lifecycle

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
	"github.com/angelmondragon/farmlane-backend/pkg/types"
)

type OrderLineInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"required,gt=0"`
}

// CreateOrderInput is a checkout request. BuyerID is only honoured for admins
// placing an order on a buyer's behalf.
type CreateOrderInput struct {
	BuyerID         *uuid.UUID       `json:"buyer_id,omitempty"`
	Items           []OrderLineInput `json:"items" validate:"required,min=1,dive"`
	ShippingAddress types.Address    `json:"shipping_address" validate:"required"`
}

type CheckoutResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
}

type AdjustStockInput struct {
	ProductID  uuid.UUID                 `json:"product_id" validate:"required"`
	Delta      int64                     `json:"delta" validate:"required"`
	ChangeType enums.InventoryChangeType `json:"change_type" validate:"required"`
	Reason     string                    `json:"reason" validate:"max=500"`
}
