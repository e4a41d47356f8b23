package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// OrderStateChange is an append-only record of an order transition.
type OrderStateChange struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID        `gorm:"column:order_id;type:uuid;not null;index"`
	FromState  enums.OrderState `gorm:"column:from_state;type:order_state;not null"`
	ToState    enums.OrderState `gorm:"column:to_state;type:order_state;not null"`
	Metadata   json.RawMessage  `gorm:"column:metadata;type:jsonb"`
	OccurredAt time.Time        `gorm:"column:occurred_at;autoCreateTime"`
}
