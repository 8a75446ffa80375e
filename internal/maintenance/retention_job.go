package maintenance

import (
	"context"
	"fmt"

	"github.com/Sirveme/quevendi-pos/pkg/logger"
)

type saleCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// SaleRetentionJobParams configures the delivered-sale purge.
type SaleRetentionJobParams struct {
	Logger        *logger.Logger
	Sales         saleCleaner
	RetentionDays int
}

// NewSaleRetentionJob constructs the job that purges delivered sales
// older than the retention window. Undelivered sales are never touched.
func NewSaleRetentionJob(params SaleRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sales == nil {
		return nil, fmt.Errorf("sales service required")
	}
	if params.RetentionDays <= 0 {
		params.RetentionDays = 7
	}
	return &saleRetentionJob{
		logg:          params.Logger,
		sales:         params.Sales,
		retentionDays: params.RetentionDays,
	}, nil
}

type saleRetentionJob struct {
	logg          *logger.Logger
	sales         saleCleaner
	retentionDays int
}

func (j *saleRetentionJob) Name() string { return "sale-retention" }

func (j *saleRetentionJob) Run(ctx context.Context) error {
	removed, err := j.sales.Cleanup(ctx, j.retentionDays)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "removed", removed), "purged delivered sales past retention")
	}
	return nil
}
