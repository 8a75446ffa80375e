package correlative

import (
	"context"
	"testing"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	manager := store.NewManager(config.StoreConfig{Dir: t.TempDir(), BusyTimeout: time.Second}, nil)
	session, err := manager.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	alloc, err := NewAllocator(session, nil)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	return alloc
}

func TestGetNextWalksTheBlock(t *testing.T) {
	alloc := newTestAllocator(t)
	ctx := context.Background()
	if err := alloc.SaveBlock(ctx, "B001", 100, 109); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}

	for i, want := range []int64{100, 101, 102} {
		got, err := alloc.GetNext(ctx, "B001")
		if err != nil {
			t.Fatalf("GetNext #%d: %v", i, err)
		}
		if got == nil || *got != want {
			t.Fatalf("GetNext #%d = %v, want %d", i, got, want)
		}
	}

	remaining, err := alloc.GetRemaining(ctx, "B001")
	if err != nil {
		t.Fatalf("GetRemaining: %v", err)
	}
	if remaining != 7 {
		t.Fatalf("after three allocations remaining must be 7, got %d", remaining)
	}
}

func TestGetNextExhaustedReturnsNil(t *testing.T) {
	alloc := newTestAllocator(t)
	ctx := context.Background()
	if err := alloc.SaveBlock(ctx, "B001", 1, 2); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}

	for i := 0; i < 2; i++ {
		if got, err := alloc.GetNext(ctx, "B001"); err != nil || got == nil {
			t.Fatalf("GetNext #%d = %v, %v", i, got, err)
		}
	}
	got, err := alloc.GetNext(ctx, "B001")
	if err != nil {
		t.Fatalf("GetNext exhausted: %v", err)
	}
	if got != nil {
		t.Fatalf("exhausted block must yield nil, got %d", *got)
	}

	remaining, _ := alloc.GetRemaining(ctx, "B001")
	if remaining != 0 {
		t.Fatalf("exhausted block must report zero remaining, got %d", remaining)
	}
}

func TestGetNextUnknownSeriesReturnsNil(t *testing.T) {
	alloc := newTestAllocator(t)
	got, err := alloc.GetNext(context.Background(), "F001")
	if err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if got != nil {
		t.Fatalf("missing series must yield nil, got %d", *got)
	}
}

func TestSaveBlockReplacesPriorRange(t *testing.T) {
	alloc := newTestAllocator(t)
	ctx := context.Background()
	if err := alloc.SaveBlock(ctx, "B001", 1, 5); err != nil {
		t.Fatalf("SaveBlock: %v", err)
	}
	if _, err := alloc.GetNext(ctx, "B001"); err != nil {
		t.Fatalf("GetNext: %v", err)
	}
	if err := alloc.SaveBlock(ctx, "B001", 200, 299); err != nil {
		t.Fatalf("SaveBlock replacement: %v", err)
	}

	got, err := alloc.GetNext(ctx, "B001")
	if err != nil {
		t.Fatalf("GetNext after replacement: %v", err)
	}
	if got == nil || *got != 200 {
		t.Fatalf("replacement block must restart at its low end, got %v", got)
	}
}

func TestSaveBlockValidatesRange(t *testing.T) {
	alloc := newTestAllocator(t)
	ctx := context.Background()
	if err := alloc.SaveBlock(ctx, "", 1, 5); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("empty series must be rejected, got %v", err)
	}
	if err := alloc.SaveBlock(ctx, "B001", 10, 5); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("inverted range must be rejected, got %v", err)
	}
}

func TestGetStatusFlagsLowBlocks(t *testing.T) {
	alloc := newTestAllocator(t)
	ctx := context.Background()
	if err := alloc.SaveBlock(ctx, "B001", 1, 5); err != nil {
		t.Fatalf("SaveBlock low: %v", err)
	}
	if err := alloc.SaveBlock(ctx, "F001", 1, 1000); err != nil {
		t.Fatalf("SaveBlock healthy: %v", err)
	}

	statuses, err := alloc.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(statuses))
	}
	if statuses[0].Series != "B001" || !statuses[0].Low {
		t.Fatalf("5-number block must be flagged low, got %+v", statuses[0])
	}
	if statuses[1].Series != "F001" || statuses[1].Low {
		t.Fatalf("1000-number block must not be low, got %+v", statuses[1])
	}
}
