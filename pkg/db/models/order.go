package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// Order is the aggregate root for the marketplace order lifecycle.
type Order struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID                uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null"`
	State                  enums.OrderState   `gorm:"column:state;type:order_state;not null;default:'created'"`
	PreviousState          *enums.OrderState  `gorm:"column:previous_state;type:order_state"`
	Currency               enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	GrossTotalCents        int64              `gorm:"column:gross_total_cents;not null"`
	PlatformFeeCents       int64              `gorm:"column:platform_fee_cents;not null;default:0"`
	SellerPayoutTotalCents int64              `gorm:"column:seller_payout_total_cents;not null;default:0"`
	PaymentRef             *string            `gorm:"column:payment_ref"`
	PaymentCapturedAt      *time.Time         `gorm:"column:payment_captured_at"`
	RefundRef              *string            `gorm:"column:refund_ref"`
	EscrowReleaseAt        *time.Time         `gorm:"column:escrow_release_at"`
	Version                int64              `gorm:"column:version;not null;default:0"`
	Items                  []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StateChanges           []OrderStateChange `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
