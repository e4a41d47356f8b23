package orders

import (
	"context"
	"time"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindStateChanges(ctx context.Context, orderID uuid.UUID) ([]models.OrderStateChange, error)
	FindDueForEscrowRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateOrderState(ctx context.Context, orderID uuid.UUID, expectedVersion int64, updates map[string]any) (int64, error)
	UpdateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreateStateChange(ctx context.Context, change *models.OrderStateChange) error
}
