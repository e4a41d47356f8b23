package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
)

// Repository wraps the raw SQL needed by the stock ledger. Counter writes are
// guarded updates so two concurrent sales can never drive a level negative.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a stock repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// EnsureLevel creates the counter row for a product if it does not exist yet.
func (r *Repository) EnsureLevel(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).Exec(`
		INSERT INTO stock_levels (product_id, on_hand_qty, updated_at)
		VALUES (?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT (product_id) DO NOTHING
	`, productID).Error
}

// ApplyDelta adjusts the cached counter and reports whether the guard held.
func (r *Repository) ApplyDelta(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (bool, error) {
	res := r.conn(tx).WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET on_hand_qty = on_hand_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND on_hand_qty + ? >= 0
	`, delta, productID, delta)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Level returns the cached counter row for a product.
func (r *Repository) Level(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.StockLevel, error) {
	var level models.StockLevel
	err := r.conn(tx).WithContext(ctx).
		Where("product_id = ?", productID).
		First(&level).Error
	if err != nil {
		return nil, err
	}
	return &level, nil
}

// CreateMovement appends one immutable ledger row.
func (r *Repository) CreateMovement(ctx context.Context, tx *gorm.DB, movement *models.StockMovement) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.WithContext(ctx).Create(movement).Error
}

// Movements lists the most recent ledger rows for a product.
func (r *Repository) Movements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// SumMovements recomputes the balance from the full ledger.
func (r *Repository) SumMovements(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int64, error) {
	var total int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.StockMovement{}).
		Select("COALESCE(SUM(delta_qty), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error
	return total, err
}

// ProductIDs lists every product with a counter row, for the audit sweep.
func (r *Repository) ProductIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.StockLevel{}).
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	return ids, err
}

// SetLevel overwrites the cached counter, used by the rebuild audit.
func (r *Repository) SetLevel(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int64) error {
	return r.conn(tx).WithContext(ctx).Exec(`
		UPDATE stock_levels
		SET on_hand_qty = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ?
	`, qty, productID).Error
}
