package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// OrderItem freezes product, farmer and price at order creation so later
// product edits never change what the buyer agreed to.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	FarmerID          uuid.UUID               `gorm:"column:farmer_id;type:uuid;not null;index"`
	ProductName       string                  `gorm:"column:product_name;not null"`
	Quantity          int64                   `gorm:"column:quantity;not null"`
	UnitPriceCents    int64                   `gorm:"column:unit_price_cents;not null"`
	LineTotalCents    int64                   `gorm:"column:line_total_cents;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null"`
	TrackingNumber    *string                 `gorm:"column:tracking_number"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.FulfillmentStatus == "" {
		i.FulfillmentStatus = enums.FulfillmentStatusPending
	}
	i.LineTotalCents = i.UnitPriceCents * i.Quantity
	return nil
}
