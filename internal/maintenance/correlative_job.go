package maintenance

import (
	"context"
	"fmt"

	"github.com/Sirveme/quevendi-pos/internal/correlative"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
)

type blockReader interface {
	GetStatus(ctx context.Context) ([]correlative.BlockStatus, error)
}

// CorrelativeWatchJobParams configures the numbering block watcher.
type CorrelativeWatchJobParams struct {
	Logger *logger.Logger
	Blocks blockReader
}

// NewCorrelativeWatchJob constructs the job that logs a warning for
// every receipt numbering block running low, so the operator reconnects
// before the till cannot number receipts.
func NewCorrelativeWatchJob(params CorrelativeWatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Blocks == nil {
		return nil, fmt.Errorf("correlative allocator required")
	}
	return &correlativeWatchJob{logg: params.Logger, blocks: params.Blocks}, nil
}

type correlativeWatchJob struct {
	logg   *logger.Logger
	blocks blockReader
}

func (j *correlativeWatchJob) Name() string { return "correlative-watch" }

func (j *correlativeWatchJob) Run(ctx context.Context) error {
	statuses, err := j.blocks.GetStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range statuses {
		if !status.Low {
			continue
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"series":    status.Series,
			"remaining": status.Remaining,
		})
		j.logg.Warn(logCtx, "receipt numbering block running low")
	}
	return nil
}
