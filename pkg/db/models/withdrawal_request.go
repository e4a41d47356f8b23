package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// WithdrawalRequest tracks a seller's request to move available funds out.
type WithdrawalRequest struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID    uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	AmountCents int64                  `gorm:"column:amount_cents;not null"`
	Status      enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	TransferRef *string                `gorm:"column:transfer_ref"`
	Notes       *string                `gorm:"column:notes"`
	DecidedAt   *time.Time             `gorm:"column:decided_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
