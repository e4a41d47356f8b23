package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// MovementInput describes one signed adjustment to a product's stock.
type MovementInput struct {
	ProductID uuid.UUID
	OrderID   *uuid.UUID
	DeltaQty  int64
	Reason    enums.StockMovementReason
	ActorID   *uuid.UUID
}

// BulkAdjustment is one line of a batch stock update.
type BulkAdjustment struct {
	ProductID uuid.UUID
	DeltaQty  int64
}

// Service maintains the append-only stock ledger and its cached counters.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.StockMovement, error)
	Restock(ctx context.Context, productID uuid.UUID, qty int64, actorID *uuid.UUID) (*models.StockMovement, error)
	AdjustTo(ctx context.Context, productID uuid.UUID, targetQty int64, actorID *uuid.UUID) (*models.StockMovement, error)
	BulkUpdate(ctx context.Context, adjustments []BulkAdjustment, actorID *uuid.UUID) ([]models.StockMovement, error)
	Level(ctx context.Context, productID uuid.UUID) (*models.StockLevel, error)
	Movements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error)
	Rebuild(ctx context.Context, productID uuid.UUID) (int64, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService builds the stock service with the required dependencies.
func NewService(repo *Repository, tx txRunner, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: ob, logg: logg}, nil
}

// Apply records one movement and updates the counter inside the caller's
// transaction. The ledger row carries the balance after the movement so the
// history is auditable without replaying it.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.StockMovement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock movement")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.DeltaQty == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "movement delta must be non-zero")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stock movement reason")
	}

	if err := s.repo.EnsureLevel(ctx, tx, input.ProductID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure stock level")
	}

	applied, err := s.repo.ApplyDelta(ctx, tx, input.ProductID, input.DeltaQty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply stock delta")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "stock level would go negative").
			WithDetails(map[string]any{
				"product_id": input.ProductID.String(),
				"delta_qty":  input.DeltaQty,
			})
	}

	level, err := s.repo.Level(ctx, tx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock level")
	}

	movement := &models.StockMovement{
		ID:           uuid.New(),
		ProductID:    input.ProductID,
		OrderID:      input.OrderID,
		DeltaQty:     input.DeltaQty,
		Reason:       input.Reason,
		ActorID:      input.ActorID,
		BalanceAfter: level.OnHandQty,
	}
	if err := s.repo.CreateMovement(ctx, tx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append stock movement")
	}

	// Order-driven movements ride the order events; only manual operations
	// get their own event.
	if input.Reason == enums.StockMovementReasonRestock || input.Reason == enums.StockMovementReasonManualAdjustment {
		event := outbox.DomainEvent{
			EventType:     enums.EventStockAdjusted,
			AggregateType: enums.AggregateStockLevel,
			AggregateID:   input.ProductID,
			Version:       1,
			Data: payloads.StockAdjustedEvent{
				ProductID:    input.ProductID,
				DeltaQty:     input.DeltaQty,
				Reason:       input.Reason,
				BalanceAfter: level.OnHandQty,
				AdjustedAt:   movement.CreatedAt,
			},
		}
		if input.ActorID != nil {
			event.Actor = &outbox.ActorRef{UserID: *input.ActorID, Role: "admin"}
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit stock adjusted event")
		}
	}
	return movement, nil
}

func (s *service) Restock(ctx context.Context, productID uuid.UUID, qty int64, actorID *uuid.UUID) (*models.StockMovement, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}
	var movement *models.StockMovement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var applyErr error
		movement, applyErr = s.Apply(ctx, tx, MovementInput{
			ProductID: productID,
			DeltaQty:  qty,
			Reason:    enums.StockMovementReasonRestock,
			ActorID:   actorID,
		})
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// AdjustTo moves the level to an absolute target, expressed in the ledger as
// a signed manual adjustment so the audit trail stays complete.
func (s *service) AdjustTo(ctx context.Context, productID uuid.UUID, targetQty int64, actorID *uuid.UUID) (*models.StockMovement, error) {
	if targetQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target quantity must be non-negative")
	}
	var movement *models.StockMovement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.EnsureLevel(ctx, tx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure stock level")
		}
		level, err := s.repo.Level(ctx, tx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock level")
		}
		delta := targetQty - level.OnHandQty
		if delta == 0 {
			return nil
		}
		movement, err = s.Apply(ctx, tx, MovementInput{
			ProductID: productID,
			DeltaQty:  delta,
			Reason:    enums.StockMovementReasonManualAdjustment,
			ActorID:   actorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// BulkUpdate applies a batch of signed manual adjustments in one transaction.
// A line that would drive any product negative rolls back the whole batch.
func (s *service) BulkUpdate(ctx context.Context, adjustments []BulkAdjustment, actorID *uuid.UUID) ([]models.StockMovement, error) {
	if len(adjustments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one adjustment required")
	}
	movements := make([]models.StockMovement, 0, len(adjustments))
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, adjustment := range adjustments {
			movement, err := s.Apply(ctx, tx, MovementInput{
				ProductID: adjustment.ProductID,
				DeltaQty:  adjustment.DeltaQty,
				Reason:    enums.StockMovementReasonManualAdjustment,
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
			movements = append(movements, *movement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *service) Level(ctx context.Context, productID uuid.UUID) (*models.StockLevel, error) {
	level, err := s.repo.Level(ctx, nil, productID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock level not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock level")
	}
	return level, nil
}

func (s *service) Movements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	rows, err := s.repo.Movements(ctx, productID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return rows, nil
}

// Rebuild recomputes the counter from the ledger and heals any drift.
func (s *service) Rebuild(ctx context.Context, productID uuid.UUID) (int64, error) {
	var rebuilt int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		total, err := s.repo.SumMovements(ctx, tx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum stock movements")
		}
		level, err := s.repo.Level(ctx, tx, productID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock level not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock level")
		}
		rebuilt = total
		if level.OnHandQty == total {
			return nil
		}
		if s.logg != nil {
			drifted := s.logg.WithFields(ctx, map[string]any{
				"product_id": productID.String(),
				"cached_qty": level.OnHandQty,
				"ledger_qty": total,
			})
			s.logg.Warn(drifted, "stock counter drift detected")
		}
		return s.repo.SetLevel(ctx, tx, productID, total)
	})
	if err != nil {
		return 0, err
	}
	return rebuilt, nil
}
