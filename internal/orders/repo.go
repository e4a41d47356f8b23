package orders

import (
	"context"
	"time"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindStateChanges(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error) {
	var changes []models.OrderStateChange
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at ASC").
		Find(&changes).Error
	if err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *repository) FindDueForEscrowRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("state = ? AND escrow_release_at IS NOT NULL AND escrow_release_at <= ?", enums.OrderStateDelivered, cutoff).
		Order("escrow_release_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)

	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{}
	pageSize := pagination.NormalizeLimit(params.Limit)
	if len(rows) > pageSize {
		last := rows[pageSize-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:pageSize]
	}

	for _, row := range rows {
		list.Orders = append(list.Orders, OrderSummary{
			ID:              row.ID,
			State:           row.State,
			Currency:        row.Currency,
			GrossTotalCents: row.GrossTotalCents,
			TotalItems:      len(row.Items),
			EscrowReleaseAt: row.EscrowReleaseAt,
			CreatedAt:       row.CreatedAt,
		})
	}
	return list, nil
}

// UpdateOrderState applies the updates only when the stored version still
// matches expectedVersion, and reports how many rows were touched.
func (r *repository) UpdateOrderState(ctx context.Context, orderID uuid.UUID, expectedVersion int64, updates map[string]any) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) UpdateOrderItems(ctx context.Context, items []models.OrderItem) error {
	for i := range items {
		err := r.db.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ?", items[i].ID).
			Updates(map[string]any{
				"commission_rate_bps":       items[i].CommissionRateBps,
				"platform_commission_cents": items[i].PlatformCommissionCents,
				"seller_payout_cents":       items[i].SellerPayoutCents,
				"payout_status":             items[i].PayoutStatus,
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) CreateStateChange(ctx context.Context, change *models.OrderStateChange) error {
	return r.db.WithContext(ctx).Create(change).Error
}
