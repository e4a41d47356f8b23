package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/avelarsoto/tianguis-backend/pkg/logger"
)

type stockLevelLister interface {
	ProductIDs(ctx context.Context) ([]uuid.UUID, error)
}

type stockRebuilder interface {
	Rebuild(ctx context.Context, productID uuid.UUID) (int64, error)
}

// StockAuditJobParams configure the stock counter audit job.
type StockAuditJobParams struct {
	Logger  *logger.Logger
	Levels  stockLevelLister
	Rebuild stockRebuilder
}

// NewStockAuditJob builds the job that replays the movement ledger for every
// tracked product and heals drifted counters.
func NewStockAuditJob(params StockAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Levels == nil {
		return nil, fmt.Errorf("stock level lister required")
	}
	if params.Rebuild == nil {
		return nil, fmt.Errorf("stock rebuilder required")
	}
	return &stockAuditJob{
		logg:    params.Logger,
		levels:  params.Levels,
		rebuild: params.Rebuild,
	}, nil
}

type stockAuditJob struct {
	logg    *logger.Logger
	levels  stockLevelLister
	rebuild stockRebuilder
}

func (j *stockAuditJob) Name() string { return "stock-audit" }

func (j *stockAuditJob) Run(ctx context.Context) error {
	ids, err := j.levels.ProductIDs(ctx)
	if err != nil {
		return fmt.Errorf("list stock levels: %w", err)
	}
	var errs []error
	for _, productID := range ids {
		if _, err := j.rebuild.Rebuild(ctx, productID); err != nil {
			errs = append(errs, fmt.Errorf("rebuild product %s: %w", productID, err))
		}
	}
	logCtx := j.logg.WithField(ctx, "products_audited", len(ids))
	j.logg.Info(logCtx, "stock audit complete")
	return multierr.Combine(errs...)
}
