package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// OrderItem is one product line within an order, owned by a single seller.
type OrderItem struct {
	ID                      uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                 uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID                uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	ProductID               uuid.UUID              `gorm:"column:product_id;type:uuid;not null"`
	Name                    string                 `gorm:"column:name;not null"`
	Qty                     int64                  `gorm:"column:qty;not null"`
	UnitPriceCents          int64                  `gorm:"column:unit_price_cents;not null"`
	GrossCents              int64                  `gorm:"column:gross_cents;not null"`
	CommissionRateBps       int64                  `gorm:"column:commission_rate_bps;not null;default:0"`
	PlatformCommissionCents int64                  `gorm:"column:platform_commission_cents;not null;default:0"`
	SellerPayoutCents       int64                  `gorm:"column:seller_payout_cents;not null;default:0"`
	PayoutStatus            enums.ItemPayoutStatus `gorm:"column:payout_status;type:item_payout_status;not null;default:'pending'"`
	CreatedAt               time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
