package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmlane-backend/pkg/enums"
)

// PaymentEvent is the durable idempotency record for a provider webhook.
// EventID is unique; Result is replayed verbatim on redelivery.
type PaymentEvent struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	EventID      string                 `gorm:"column:event_id;not null;uniqueIndex:ux_payment_events_event_id"`
	EventType    enums.PaymentEventType `gorm:"column:event_type;type:text;not null"`
	ProviderType string                 `gorm:"column:provider_type;not null"`
	OrderID      *uuid.UUID             `gorm:"column:order_id;type:uuid;index"`
	Payload      json.RawMessage        `gorm:"column:payload;type:jsonb;serializer:json;not null"`
	Result       json.RawMessage        `gorm:"column:result;type:jsonb;serializer:json"`
	ProcessedAt  time.Time              `gorm:"column:processed_at;not null"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (e *PaymentEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
