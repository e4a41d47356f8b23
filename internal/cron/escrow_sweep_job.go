package cron

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/avelarsoto/tianguis-backend/internal/payouts"
	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type escrowSweeper interface {
	Sweep(ctx context.Context) (payouts.SweepResult, error)
}

// EscrowSweepJobParams configure the escrow payout sweep job.
type EscrowSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper escrowSweeper
}

// NewEscrowSweepJob builds the job that settles delivered orders whose
// escrow window has elapsed.
func NewEscrowSweepJob(params EscrowSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &escrowSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type escrowSweepJob struct {
	logg    *logger.Logger
	sweeper escrowSweeper
}

func (j *escrowSweepJob) Name() string { return "escrow-sweep" }

func (j *escrowSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("escrow sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"orders_processed": result.Processed,
		"orders_completed": result.Completed,
		"payouts_ok":       result.Succeeded,
		"payouts_failed":   result.Failed,
	})
	j.logg.Info(logCtx, "escrow sweep complete")
	for _, orderErr := range result.Errors {
		errCtx := j.logg.WithField(ctx, "order_id", orderErr.OrderID.String())
		j.logg.Warn(errCtx, "escrow sweep order failed: "+orderErr.Err)
	}
	return nil
}
