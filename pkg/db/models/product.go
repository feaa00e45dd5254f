package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// Product is the listing a farmer sells. QuantityAvailable is owned by the
// inventory ledger; nothing else writes it.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	FarmerID          uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null;index"`
	Name              string              `gorm:"column:name;not null"`
	Unit              string              `gorm:"column:unit;not null;default:'each'"`
	PriceCents        int64               `gorm:"column:price_cents;not null"`
	QuantityAvailable int64               `gorm:"column:quantity_available;not null;default:0"`
	Status            enums.ProductStatus `gorm:"column:status;type:text;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = enums.ProductStatusOutOfStock
		if p.QuantityAvailable > 0 {
			p.Status = enums.ProductStatusActive
		}
	}
	return nil
}
