package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
)

// Repository persists payout ledger entries and seller balances.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// FindEntry loads the ledger row for an (order, seller) pair if one exists.
func (r *Repository) FindEntry(ctx context.Context, tx *gorm.DB, orderID, sellerID uuid.UUID) (*models.PayoutLedgerEntry, error) {
	var entry models.PayoutLedgerEntry
	err := r.conn(tx).WithContext(ctx).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// UpsertEntry writes the ledger row for an (order, seller) pair. A retried
// payout updates the existing row in place so the unique index always holds
// exactly one row per pair.
func (r *Repository) UpsertEntry(ctx context.Context, tx *gorm.DB, entry *models.PayoutLedgerEntry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	existing, err := r.FindEntry(ctx, tx, entry.OrderID, entry.SellerID)
	if err != nil {
		return err
	}
	if existing == nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.AttemptCount = 1
		return tx.WithContext(ctx).Create(entry).Error
	}
	return tx.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"amount_cents":     entry.AmountCents,
			"commission_cents": entry.CommissionCents,
			"net_amount_cents": entry.NetAmountCents,
			"status":           entry.Status,
			"transfer_ref":     entry.TransferRef,
			"error_detail":     entry.ErrorDetail,
			"attempt_count":    gorm.Expr("attempt_count + 1"),
		}).Error
}

// SettleEntry flips the (order, seller) ledger row to completed and reports
// whether this call performed the flip. A row another sweep already completed
// leaves the guard untouched, so overlapping runs credit the seller once.
func (r *Repository) SettleEntry(ctx context.Context, tx *gorm.DB, entry *models.PayoutLedgerEntry) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	entry.Status = enums.PayoutLedgerStatusCompleted

	existing, err := r.FindEntry(ctx, tx, entry.OrderID, entry.SellerID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.AttemptCount = 1
		res := tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}, {Name: "seller_id"}},
				DoNothing: true,
			}).
			Create(entry)
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected > 0 {
			return true, nil
		}
		// Lost the insert race; the winner's row decides below.
		existing, err = r.FindEntry(ctx, tx, entry.OrderID, entry.SellerID)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, errors.New("ledger row vanished after conflict")
		}
	}
	entry.ID = existing.ID
	res := tx.WithContext(ctx).
		Model(&models.PayoutLedgerEntry{}).
		Where("id = ? AND status <> ?", existing.ID, enums.PayoutLedgerStatusCompleted).
		Updates(map[string]any{
			"amount_cents":     entry.AmountCents,
			"commission_cents": entry.CommissionCents,
			"net_amount_cents": entry.NetAmountCents,
			"status":           enums.PayoutLedgerStatusCompleted,
			"transfer_ref":     entry.TransferRef,
			"error_detail":     nil,
			"attempt_count":    gorm.Expr("attempt_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListByOrder returns all ledger rows recorded for an order.
func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error) {
	var rows []models.PayoutLedgerEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListBySeller returns a seller's ledger rows, newest first.
func (r *Repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutLedgerEntry, error) {
	var rows []models.PayoutLedgerEntry
	query := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// EnsureBalance creates the balance row for a seller if missing.
func (r *Repository) EnsureBalance(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) error {
	return r.conn(tx).WithContext(ctx).Exec(`
		INSERT INTO seller_balances (seller_id, available_cents, pending_cents, total_withdrawn_cents, updated_at)
		VALUES (?, 0, 0, 0, CURRENT_TIMESTAMP)
		ON CONFLICT (seller_id) DO NOTHING
	`, sellerID).Error
}

// GetBalance loads a seller's balance row.
func (r *Repository) GetBalance(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	err := r.conn(tx).WithContext(ctx).
		Where("seller_id = ?", sellerID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// CreditAvailable adds settled payout funds to the seller's available balance.
func (r *Repository) CreditAvailable(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if amountCents <= 0 {
		return errors.New("credit amount must be positive")
	}
	return tx.WithContext(ctx).Exec(`
		UPDATE seller_balances
		SET available_cents = available_cents + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE seller_id = ?
	`, amountCents, sellerID).Error
}

// HoldForWithdrawal moves funds from available to pending, guarded so the
// available balance can never go negative.
func (r *Repository) HoldForWithdrawal(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE seller_balances
		SET available_cents = available_cents - ?,
			pending_cents = pending_cents + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE seller_id = ? AND available_cents >= ?
	`, amountCents, amountCents, sellerID, amountCents)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SettleWithdrawal moves held funds into the withdrawn total.
func (r *Repository) SettleWithdrawal(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE seller_balances
		SET pending_cents = pending_cents - ?,
			total_withdrawn_cents = total_withdrawn_cents + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE seller_id = ? AND pending_cents >= ?
	`, amountCents, amountCents, sellerID, amountCents)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseHold returns held funds to the available balance.
func (r *Repository) ReleaseHold(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE seller_balances
		SET pending_cents = pending_cents - ?,
			available_cents = available_cents + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE seller_id = ? AND pending_cents >= ?
	`, amountCents, amountCents, sellerID, amountCents)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkItemsPaid flips the payout status for a seller's items on an order.
func (r *Repository) MarkItemsPaid(ctx context.Context, tx *gorm.DB, orderID, sellerID uuid.UUID, status enums.ItemPayoutStatus) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Updates(map[string]any{
			"payout_status": status,
			"updated_at":    time.Now(),
		}).Error
}
