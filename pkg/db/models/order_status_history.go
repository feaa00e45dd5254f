package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// OrderStatusHistory is the append-only audit trail of an order. Sequence is
// dense per order and the highest sequence always carries the current status.
type OrderStatusHistory struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_status_history_order_seq,priority:1"`
	Sequence       int64              `gorm:"column:sequence;not null;uniqueIndex:ux_order_status_history_order_seq,priority:2"`
	PreviousStatus *enums.OrderStatus `gorm:"column:previous_status;type:text"`
	Status         enums.OrderStatus  `gorm:"column:status;type:text;not null"`
	ActorID        *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	ActorRole      enums.ActorRole    `gorm:"column:actor_role;type:text;not null"`
	Notes          string             `gorm:"column:notes;not null;default:''"`
	Metadata       map[string]any     `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
