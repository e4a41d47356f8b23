package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerBalance aggregates a seller's funds across payouts and withdrawals.
type SellerBalance struct {
	SellerID            uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	AvailableCents      int64     `gorm:"column:available_cents;not null;default:0"`
	PendingCents        int64     `gorm:"column:pending_cents;not null;default:0"`
	TotalWithdrawnCents int64     `gorm:"column:total_withdrawn_cents;not null;default:0"`
	PayoutAccountRef    *string   `gorm:"column:payout_account_ref"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
