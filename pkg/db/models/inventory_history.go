package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// InventoryHistory is one ledger row. PreviousQuantity and NewQuantity are
// captured at write time so the ledger can be replayed and checked.
type InventoryHistory struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_history_product_seq,priority:1"`
	Sequence         int64                     `gorm:"column:sequence;not null;uniqueIndex:ux_inventory_history_product_seq,priority:2"`
	QuantityChange   int64                     `gorm:"column:quantity_change;not null"`
	PreviousQuantity int64                     `gorm:"column:previous_quantity;not null"`
	NewQuantity      int64                     `gorm:"column:new_quantity;not null"`
	ChangeType       enums.InventoryChangeType `gorm:"column:change_type;type:text;not null"`
	Reason           string                    `gorm:"column:reason;not null;default:''"`
	ReferenceID      *uuid.UUID                `gorm:"column:reference_id;type:uuid;index"`
	ActorID          *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryHistory) TableName() string {
	return "inventory_history"
}

func (h *InventoryHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
