package models

import (
	"time"

	"github.com/google/uuid"
)

// StockLevel is the cached counter projected from stock movements.
type StockLevel struct {
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	OnHandQty int64     `gorm:"column:on_hand_qty;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
