// Package correlative manages locally reserved receipt numbering blocks.
// The server grants a contiguous range per series; numbers are consumed
// one at a time while offline and the block is replenished on sync.
package correlative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

// lowWatermark is the remaining count under which a block is reported as
// running out, so the synchronizer can request a fresh range early.
const lowWatermark = 10

// Allocator hands out receipt numbers from reserved blocks.
type Allocator struct {
	session *store.Session
	logg    *logger.Logger
	now     func() time.Time
}

// NewAllocator builds an allocator bound to the tenant session.
func NewAllocator(session *store.Session, logg *logger.Logger) (*Allocator, error) {
	if session == nil {
		return nil, fmt.Errorf("store session required")
	}
	return &Allocator{
		session: session,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SaveBlock stores a server-granted range for the series, replacing any
// prior block. The cursor starts at the low end of the range.
func (a *Allocator) SaveBlock(ctx context.Context, series string, from, to int64) error {
	if series == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "series required")
	}
	if from <= 0 || to < from {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid range %d..%d", from, to))
	}
	block := models.CorrelativeBlock{
		Series:     series,
		Current:    from,
		From:       from,
		To:         to,
		Remaining:  to - from + 1,
		ReservedAt: a.now(),
	}
	err := a.session.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Save(&block).Error
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "saving correlative block")
	}
	if a.logg != nil {
		logCtx := a.logg.WithFields(ctx, map[string]any{
			"series": series,
			"from":   from,
			"to":     to,
		})
		a.logg.Info(logCtx, "correlative block reserved")
	}
	return nil
}

// GetNext consumes and returns the next number of the series, or nil when
// no block exists or the block is exhausted. The read, the advance and
// the remaining count update happen in one transaction.
func (a *Allocator) GetNext(ctx context.Context, series string) (*int64, error) {
	var allocated *int64
	err := a.session.WithTx(ctx, func(tx *gorm.DB) error {
		var block models.CorrelativeBlock
		err := tx.First(&block, "series = ?", series).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if block.Current > block.To {
			return nil
		}
		number := block.Current
		allocated = &number
		return tx.Model(&models.CorrelativeBlock{}).
			Where("series = ?", series).
			Updates(map[string]any{
				"current":   number + 1,
				"remaining": block.To - number,
			}).Error
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "allocating correlative")
	}
	return allocated, nil
}

// GetRemaining reports how many numbers the series still holds; zero when
// the block is exhausted or absent.
func (a *Allocator) GetRemaining(ctx context.Context, series string) (int64, error) {
	var block models.CorrelativeBlock
	err := a.session.DB().WithContext(ctx).First(&block, "series = ?", series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reading correlative block")
	}
	return block.Remaining, nil
}

// BlockStatus describes one reserved block for diagnostics.
type BlockStatus struct {
	Series     string    `json:"series"`
	Current    int64     `json:"current"`
	From       int64     `json:"from"`
	To         int64     `json:"to"`
	Remaining  int64     `json:"remaining"`
	Low        bool      `json:"low"`
	ReservedAt time.Time `json:"reserved_at"`
}

// GetStatus lists every reserved block, flagging those running low.
func (a *Allocator) GetStatus(ctx context.Context) ([]BlockStatus, error) {
	var blocks []models.CorrelativeBlock
	err := a.session.DB().WithContext(ctx).Order("series ASC").Find(&blocks).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "listing correlative blocks")
	}
	statuses := make([]BlockStatus, len(blocks))
	for i, block := range blocks {
		statuses[i] = BlockStatus{
			Series:     block.Series,
			Current:    block.Current,
			From:       block.From,
			To:         block.To,
			Remaining:  block.Remaining,
			Low:        block.Remaining < lowWatermark,
			ReservedAt: block.ReservedAt,
		}
	}
	return statuses, nil
}
