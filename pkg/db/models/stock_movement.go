package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// StockMovement is an immutable entry in the per-product stock ledger.
type StockMovement struct {
	ID           uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID    uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index"`
	OrderID      *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	DeltaQty     int64                     `gorm:"column:delta_qty;not null"`
	Reason       enums.StockMovementReason `gorm:"column:reason;type:stock_movement_reason;not null"`
	ActorID      *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	BalanceAfter int64                     `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
