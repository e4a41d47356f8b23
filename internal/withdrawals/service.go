package withdrawals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/gateway"
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

// balanceBook is the slice of the payouts repository the withdrawal flow
// needs to move funds between balance buckets.
type balanceBook interface {
	EnsureBalance(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) error
	GetBalance(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (*models.SellerBalance, error)
	HoldForWithdrawal(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error)
	SettleWithdrawal(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error)
	ReleaseHold(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID, amountCents int64) (bool, error)
}

// Service manages seller withdrawal requests against settled balances.
type Service interface {
	Request(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, withdrawalID uuid.UUID, actorID uuid.UUID) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, withdrawalID uuid.UUID, notes string, actorID uuid.UUID) (*models.WithdrawalRequest, error)
	Get(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.WithdrawalRequest, error)
	ListPending(ctx context.Context, limit int) ([]models.WithdrawalRequest, error)
}

type service struct {
	repo     *Repository
	balances balanceBook
	tx       txRunner
	gateway  gateway.Gateway
	outbox   outboxPublisher
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the withdrawals service with the required dependencies.
func NewService(repo *Repository, balances balanceBook, tx txRunner, gw gateway.Gateway, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("withdrawals repository required")
	}
	if balances == nil {
		return nil, fmt.Errorf("balance book required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		balances: balances,
		tx:       tx,
		gateway:  gw,
		outbox:   ob,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Request holds the amount out of the seller's available balance and opens a
// pending withdrawal. The guarded hold means two concurrent requests can
// never overdraw the balance.
func (s *service) Request(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.WithdrawalRequest, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}

	request := &models.WithdrawalRequest{
		ID:          uuid.New(),
		SellerID:    sellerID,
		AmountCents: amountCents,
		Status:      enums.WithdrawalStatusPending,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.balances.EnsureBalance(ctx, tx, sellerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure seller balance")
		}
		held, err := s.balances.HoldForWithdrawal(ctx, tx, sellerID, amountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "hold withdrawal funds")
		}
		if !held {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient available balance").
				WithDetails(map[string]any{
					"seller_id":    sellerID.String(),
					"amount_cents": amountCents,
				})
		}
		if err := s.repo.Create(ctx, tx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal request")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{SellerID: &sellerID, Role: "seller"},
			Data: payloads.WithdrawalRequestedEvent{
				WithdrawalID: request.ID,
				SellerID:     sellerID,
				AmountCents:  amountCents,
				RequestedAt:  s.now(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Complete pays the held amount out through the gateway and settles the hold.
// The transfer runs before the settlement transaction, so a gateway failure
// leaves the request pending and the hold intact for a retry.
func (s *service) Complete(ctx context.Context, withdrawalID uuid.UUID, actorID uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.Get(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already decided").
			WithDetails(map[string]any{"status": request.Status})
	}

	destination := ""
	balance, err := s.balances.GetBalance(ctx, nil, request.SellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
	}
	if balance.PayoutAccountRef != nil {
		destination = *balance.PayoutAccountRef
	}

	transferred, err := s.gateway.Transfer(ctx, gateway.TransferInput{
		OrderID:            request.ID,
		SellerID:           request.SellerID,
		DestinationAccount: destination,
		AmountCents:        request.AmountCents,
		Currency:           enums.CurrencyUSD,
		IdempotencyKey:     "withdrawal:" + request.ID.String(),
		Description:        "balance withdrawal " + request.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	decidedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.Decide(ctx, tx, request.ID, map[string]any{
			"status":       enums.WithdrawalStatusCompleted,
			"transfer_ref": transferred.TransferRef,
			"decided_at":   decidedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide withdrawal")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal was decided concurrently")
		}
		settled, err := s.balances.SettleWithdrawal(ctx, tx, request.SellerID, request.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle withdrawal funds")
		}
		if !settled {
			return pkgerrors.New(pkgerrors.CodeInternal, "held balance missing for withdrawal")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalSettled,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         withdrawalActor(actorID),
			Data: payloads.WithdrawalSettledEvent{
				WithdrawalID: request.ID,
				SellerID:     request.SellerID,
				AmountCents:  request.AmountCents,
				TransferRef:  transferred.TransferRef,
				SettledAt:    decidedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, withdrawalID)
}

// Reject returns the held funds to the seller's available balance.
func (s *service) Reject(ctx context.Context, withdrawalID uuid.UUID, notes string, actorID uuid.UUID) (*models.WithdrawalRequest, error) {
	request, err := s.Get(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if request.Status != enums.WithdrawalStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "withdrawal already decided").
			WithDetails(map[string]any{"status": request.Status})
	}

	decidedAt := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     enums.WithdrawalStatusRejected,
			"decided_at": decidedAt,
		}
		if notes != "" {
			updates["notes"] = notes
		}
		rows, err := s.repo.Decide(ctx, tx, request.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decide withdrawal")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal was decided concurrently")
		}
		released, err := s.balances.ReleaseHold(ctx, tx, request.SellerID, request.AmountCents)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release withdrawal hold")
		}
		if !released {
			return pkgerrors.New(pkgerrors.CodeInternal, "held balance missing for withdrawal")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRejected,
			AggregateType: enums.AggregateWithdrawal,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         withdrawalActor(actorID),
			Data: payloads.WithdrawalRejectedEvent{
				WithdrawalID: request.ID,
				SellerID:     request.SellerID,
				AmountCents:  request.AmountCents,
				Notes:        notes,
				RejectedAt:   decidedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, withdrawalID)
}

func (s *service) Get(ctx context.Context, withdrawalID uuid.UUID) (*models.WithdrawalRequest, error) {
	if withdrawalID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id required")
	}
	request, err := s.repo.Find(ctx, nil, withdrawalID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	return request, nil
}

func (s *service) ListForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.WithdrawalRequest, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	rows, err := s.repo.ListBySeller(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list withdrawals")
	}
	return rows, nil
}

func (s *service) ListPending(ctx context.Context, limit int) ([]models.WithdrawalRequest, error) {
	rows, err := s.repo.ListPending(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending withdrawals")
	}
	return rows, nil
}

func withdrawalActor(actorID uuid.UUID) *outbox.ActorRef {
	if actorID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actorID, Role: "admin"}
}
