package withdrawals

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// Repository persists withdrawal requests.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a withdrawals repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new withdrawal request.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, request *models.WithdrawalRequest) error {
	return r.conn(tx).WithContext(ctx).Create(request).Error
}

// Find loads a withdrawal request by id.
func (r *Repository) Find(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Decide moves a pending request to a terminal status. The status guard in
// the WHERE clause makes a concurrent double decision lose the race cleanly.
func (r *Repository) Decide(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, enums.WithdrawalStatusPending).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListBySeller returns a seller's withdrawal requests, newest first.
func (r *Repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	query := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// ListPending returns pending requests for admin review, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.WithdrawalRequest, error) {
	var rows []models.WithdrawalRequest
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.WithdrawalStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}
