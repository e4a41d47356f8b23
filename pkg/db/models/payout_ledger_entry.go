package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// PayoutLedgerEntry records one escrow payout attempt per (order, seller).
// The composite unique index makes the sweep idempotent.
type PayoutLedgerEntry struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payout_ledger_order_seller"`
	SellerID        uuid.UUID                `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_payout_ledger_order_seller"`
	AmountCents     int64                    `gorm:"column:amount_cents;not null"`
	CommissionCents int64                    `gorm:"column:commission_cents;not null"`
	NetAmountCents  int64                    `gorm:"column:net_amount_cents;not null"`
	Status          enums.PayoutLedgerStatus `gorm:"column:status;type:payout_ledger_status;not null"`
	TransferRef     *string                  `gorm:"column:transfer_ref"`
	ErrorDetail     *string                  `gorm:"column:error_detail"`
	AttemptCount    int                      `gorm:"column:attempt_count;not null;default:1"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
