package payouts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/gateway"
	"github.com/avelarsoto/tianguis-backend/pkg/db/models"
	"github.com/avelarsoto/tianguis-backend/pkg/enums"
	pkgerrors "github.com/avelarsoto/tianguis-backend/pkg/errors"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
	"github.com/avelarsoto/tianguis-backend/pkg/metrics"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox"
	"github.com/avelarsoto/tianguis-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dueOrderSource interface {
	FindDueForEscrowRelease(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCompleter interface {
	CompleteFromSweep(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Config tunes one sweep run.
type Config struct {
	Workers         int
	BatchSize       int
	TransferTimeout time.Duration
}

// SweepResult summarizes one sweep run. Succeeded counts fresh settlements
// only; payouts another run already recorded land in Skipped.
type SweepResult struct {
	Processed int
	Completed int
	Succeeded int
	Skipped   int
	Failed    int
	Errors    []OrderError
}

// OrderError records a sweep failure scoped to one order.
type OrderError struct {
	OrderID uuid.UUID
	Err     string
}

// Service runs the escrow payout sweep and exposes seller ledger reads.
type Service interface {
	Sweep(ctx context.Context) (SweepResult, error)
	LedgerForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error)
	LedgerForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutLedgerEntry, error)
	Balance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
}

type service struct {
	repo      *Repository
	orders    dueOrderSource
	completer orderCompleter
	tx        txRunner
	gateway   gateway.Gateway
	outbox    outboxPublisher
	stats     *metrics.SweepMetrics
	cfg       Config
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the payouts service with the required dependencies.
func NewService(repo *Repository, orders dueOrderSource, completer orderCompleter, tx txRunner, gw gateway.Gateway, ob outboxPublisher, stats *metrics.SweepMetrics, cfg Config, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("due order source required")
	}
	if completer == nil {
		return nil, fmt.Errorf("order completer required")
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
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 30 * time.Second
	}
	return &service{
		repo:      repo,
		orders:    orders,
		completer: completer,
		tx:        tx,
		gateway:   gw,
		outbox:    ob,
		stats:     stats,
		cfg:       cfg,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// Sweep pays out every delivered order whose escrow window has elapsed.
// Orders are processed independently so one failing order never blocks the
// rest of the batch, and the per-pair ledger makes reruns idempotent.
func (s *service) Sweep(ctx context.Context) (SweepResult, error) {
	candidates, err := s.orders.FindDueForEscrowRelease(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return SweepResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due orders")
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)
	for _, candidate := range candidates {
		order := candidate
		group.Go(func() error {
			outcome, err := s.processOrder(groupCtx, order)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			result.Succeeded += outcome.succeeded
			result.Skipped += outcome.skipped
			result.Failed += outcome.failed
			if outcome.completed {
				result.Completed++
			}
			if err != nil {
				result.Errors = append(result.Errors, OrderError{
					OrderID: order.ID,
					Err:     err.Error(),
				})
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

type orderOutcome struct {
	succeeded int
	skipped   int
	failed    int
	completed bool
}

// settleStatus reports how one (order, seller) settlement ended.
type settleStatus int

const (
	settleFailed settleStatus = iota
	settleSucceeded
	settleSkipped
)

func (s *service) processOrder(ctx context.Context, order models.Order) (orderOutcome, error) {
	s.stats.IncOrdersProcessed()
	var outcome orderOutcome

	sellers := sellerTotals(order.Items)
	if len(sellers) == 0 {
		return outcome, fmt.Errorf("order %s has no items to pay out", order.ID)
	}

	allSettled := true
	for _, payout := range sellers {
		status, err := s.settleSeller(ctx, order, payout)
		if err != nil {
			return outcome, err
		}
		switch status {
		case settleSucceeded:
			outcome.succeeded++
		case settleSkipped:
			outcome.skipped++
		default:
			outcome.failed++
			allSettled = false
		}
	}
	if !allSettled {
		return outcome, nil
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.completer.CompleteFromSweep(ctx, tx, order.ID)
	})
	if err != nil {
		// An overlapping sweep can complete the order first.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInvalidTransition {
			return outcome, nil
		}
		return outcome, err
	}
	outcome.completed = true
	s.stats.IncOrdersCompleted()
	return outcome, nil
}

// sellerPayout aggregates one seller's items on an order.
type sellerPayout struct {
	SellerID        uuid.UUID
	AmountCents     int64
	CommissionCents int64
	NetAmountCents  int64
}

func sellerTotals(items []models.OrderItem) []sellerPayout {
	index := map[uuid.UUID]int{}
	var totals []sellerPayout
	for _, item := range items {
		pos, ok := index[item.SellerID]
		if !ok {
			pos = len(totals)
			index[item.SellerID] = pos
			totals = append(totals, sellerPayout{SellerID: item.SellerID})
		}
		totals[pos].AmountCents += item.GrossCents
		totals[pos].CommissionCents += item.PlatformCommissionCents
		totals[pos].NetAmountCents += item.SellerPayoutCents
	}
	return totals
}

// settleSeller pays one seller for one order. A gateway failure is recorded
// as a failed ledger row and committed, so the next sweep retries it without
// losing the attempt history. The completed flip is guarded inside the
// recording transaction, so a concurrent sweep that raced past the early
// check still credits the seller exactly once.
func (s *service) settleSeller(ctx context.Context, order models.Order, payout sellerPayout) (settleStatus, error) {
	var (
		settled     bool
		destination string
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.repo.FindEntry(ctx, tx, order.ID, payout.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
		}
		if entry != nil && entry.Status == enums.PayoutLedgerStatusCompleted {
			settled = true
			return nil
		}
		if err := s.repo.EnsureBalance(ctx, tx, payout.SellerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure seller balance")
		}
		balance, err := s.repo.GetBalance(ctx, tx, payout.SellerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
		}
		if balance.PayoutAccountRef != nil {
			destination = *balance.PayoutAccountRef
		}
		return nil
	})
	if err != nil {
		return settleFailed, err
	}
	if settled {
		return settleSkipped, nil
	}

	// A fully-commissioned seller has nothing to transfer; the ledger row
	// still completes so the order can close.
	if payout.NetAmountCents == 0 {
		return s.finishSettlement(ctx, order, payout, "")
	}

	transferCtx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout)
	defer cancel()
	transferred, transferErr := s.gateway.Transfer(transferCtx, gateway.TransferInput{
		OrderID:            order.ID,
		SellerID:           payout.SellerID,
		DestinationAccount: destination,
		AmountCents:        payout.NetAmountCents,
		Currency:           order.Currency,
		IdempotencyKey:     gateway.TransferIdempotencyKey(order.ID, payout.SellerID),
		Description:        "escrow payout for order " + order.ID.String(),
	})

	if transferErr != nil {
		s.stats.IncPayoutsFailed()
		if s.logg != nil {
			failed := s.logg.WithFields(ctx, map[string]any{
				"order_id":  order.ID.String(),
				"seller_id": payout.SellerID.String(),
			})
			s.logg.Warn(failed, "seller payout failed: "+transferErr.Error())
		}
		if err := s.recordFailure(ctx, order, payout, transferErr); err != nil {
			return settleFailed, err
		}
		return settleFailed, nil
	}

	return s.finishSettlement(ctx, order, payout, transferred.TransferRef)
}

func (s *service) finishSettlement(ctx context.Context, order models.Order, payout sellerPayout, transferRef string) (settleStatus, error) {
	credited, err := s.recordSuccess(ctx, order, payout, transferRef)
	if err != nil {
		return settleFailed, err
	}
	if !credited {
		return settleSkipped, nil
	}
	s.stats.IncPayoutsSucceeded()
	return settleSucceeded, nil
}

// recordSuccess commits the completed ledger row, the balance credit, and the
// item flips in one transaction. It reports false without writing anything
// when another run completed the pair first.
func (s *service) recordSuccess(ctx context.Context, order models.Order, payout sellerPayout, transferRef string) (bool, error) {
	credited := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry := &models.PayoutLedgerEntry{
			OrderID:         order.ID,
			SellerID:        payout.SellerID,
			AmountCents:     payout.AmountCents,
			CommissionCents: payout.CommissionCents,
			NetAmountCents:  payout.NetAmountCents,
		}
		if transferRef != "" {
			entry.TransferRef = &transferRef
		}
		flipped, err := s.repo.SettleEntry(ctx, tx, entry)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
		}
		if !flipped {
			return nil
		}
		credited = true
		if payout.NetAmountCents > 0 {
			if err := s.repo.CreditAvailable(ctx, tx, payout.SellerID, payout.NetAmountCents); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit seller balance")
			}
		}
		if err := s.repo.MarkItemsPaid(ctx, tx, order.ID, payout.SellerID, enums.ItemPayoutStatusPaid); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark items paid")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRecorded,
			AggregateType: enums.AggregatePayout,
			AggregateID:   entry.ID,
			Version:       1,
			Data: payloads.PayoutRecordedEvent{
				OrderID:         order.ID,
				SellerID:        payout.SellerID,
				AmountCents:     payout.AmountCents,
				CommissionCents: payout.CommissionCents,
				NetAmountCents:  payout.NetAmountCents,
				TransferRef:     transferRef,
				SettledAt:       s.now(),
			},
		})
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (s *service) recordFailure(ctx context.Context, order models.Order, payout sellerPayout, cause error) error {
	detail := cause.Error()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry := &models.PayoutLedgerEntry{
			OrderID:         order.ID,
			SellerID:        payout.SellerID,
			AmountCents:     payout.AmountCents,
			CommissionCents: payout.CommissionCents,
			NetAmountCents:  payout.NetAmountCents,
			Status:          enums.PayoutLedgerStatusFailed,
			ErrorDetail:     &detail,
		}
		if err := s.repo.UpsertEntry(ctx, tx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout failure")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   entry.ID,
			Version:       1,
			Data: payloads.PayoutFailedEvent{
				OrderID:  order.ID,
				SellerID: payout.SellerID,
				Reason:   detail,
				FailedAt: s.now(),
			},
		})
	})
}

func (s *service) LedgerForOrder(ctx context.Context, orderID uuid.UUID) ([]models.PayoutLedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order payouts")
	}
	return rows, nil
}

func (s *service) LedgerForSeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutLedgerEntry, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	rows, err := s.repo.ListBySeller(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller payouts")
	}
	return rows, nil
}

func (s *service) Balance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	balance, err := s.repo.GetBalance(ctx, nil, sellerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &models.SellerBalance{SellerID: sellerID}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
	}
	return balance, nil
}
