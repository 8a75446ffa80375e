package sales

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sirveme/quevendi-pos/internal/catalog"
	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/enums"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
)

func newTestService(t *testing.T) (*Service, *store.Session) {
	t.Helper()
	manager := store.NewManager(config.StoreConfig{Dir: t.TempDir(), BusyTimeout: time.Second}, nil)
	session, err := manager.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	svc, err := NewService(ServiceParams{
		Session:      session,
		TenantID:     "42",
		Stock:        catalog.NewRepository(session),
		RetryCeiling: 5,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, session
}

func seedProduct(t *testing.T, session *store.Session, id int64, name, stock string) {
	t.Helper()
	row := models.Product{
		ID:        id,
		Name:      name,
		NameKey:   strings.ToLower(name),
		SalePrice: decimal.NewFromInt(5),
		Stock:     decimal.RequireFromString(stock),
		Unit:      "unidad",
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	}
	if err := session.DB().Create(&row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func saleOf(productID int64, qty string) QueueInput {
	quantity := decimal.RequireFromString(qty)
	return QueueInput{
		Items: []LineItem{{
			ProductID:   productID,
			ProductName: "Producto",
			Quantity:    quantity,
			UnitPrice:   decimal.NewFromInt(5),
			Unit:        "unidad",
			Subtotal:    quantity.Mul(decimal.NewFromInt(5)),
		}},
		PaymentMethod: enums.PaymentMethodCash,
		Total:         quantity.Mul(decimal.NewFromInt(5)),
	}
}

func productStock(t *testing.T, session *store.Session, id int64) decimal.Decimal {
	t.Helper()
	var product models.Product
	if err := session.DB().First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("read product: %v", err)
	}
	return product.Stock
}

func TestQueueDecrementsStockAtomically(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Arroz", "10")
	ctx := context.Background()

	sale, err := svc.Queue(ctx, saleOf(1, "3"), "token")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if sale.LocalID == 0 {
		t.Fatal("queued sale must have a local id")
	}
	if sale.Synced || sale.Status != enums.SaleStatusPending {
		t.Fatalf("queued sale must be pending and unsynced, got %+v", sale)
	}
	if !strings.HasPrefix(sale.VerificationCode, "VNT-") {
		t.Fatalf("unexpected verification code %q", sale.VerificationCode)
	}
	if sale.Token != "token" {
		t.Fatalf("queued sale must snapshot the token, got %q", sale.Token)
	}

	if got := productStock(t, session, 1); !got.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("stock must drop from 10 to 7, got %v", got)
	}
	count, err := svc.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 pending sale, got %d", count)
	}
}

func TestQueueClampsStockAtZero(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Azucar", "10")

	if _, err := svc.Queue(context.Background(), saleOf(1, "15"), ""); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if got := productStock(t, session, 1); !got.IsZero() {
		t.Fatalf("stock must clamp at zero, got %v", got)
	}
}

func TestQueueUncachedProductStillQueues(t *testing.T) {
	svc, _ := newTestService(t)

	sale, err := svc.Queue(context.Background(), saleOf(99, "2"), "")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if sale.Status != enums.SaleStatusPending {
		t.Fatalf("sale for uncached product must queue, got %+v", sale)
	}
}

func TestQueueValidation(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Pan", "10")
	ctx := context.Background()

	cases := []struct {
		name  string
		input QueueInput
	}{
		{"no items", QueueInput{PaymentMethod: enums.PaymentMethodCash, Total: decimal.NewFromInt(1)}},
		{"zero quantity", saleOf(1, "0")},
		{"unknown payment method", func() QueueInput {
			in := saleOf(1, "1")
			in.PaymentMethod = "cheque"
			return in
		}()},
		{"credit without customer", func() QueueInput {
			in := saleOf(1, "1")
			in.PaymentMethod = enums.PaymentMethodCredit
			in.IsCredit = true
			return in
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Queue(ctx, tc.input, ""); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if got := productStock(t, session, 1); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("rejected sales must not touch stock, got %v", got)
	}
}

func TestPendingOrderIsOldestFirst(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Leche", "100")
	ctx := context.Background()

	first, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue first: %v", err)
	}
	second, err := svc.Queue(ctx, saleOf(1, "2"), "")
	if err != nil {
		t.Fatalf("queue second: %v", err)
	}

	pending, err := svc.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 || pending[0].LocalID != first.LocalID || pending[1].LocalID != second.LocalID {
		t.Fatalf("pending sales must drain oldest first, got %+v", pending)
	}
}

func TestMarkSyncedRemovesFromPending(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Cafe", "10")
	ctx := context.Background()

	sale, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if err := svc.MarkSynced(ctx, sale.LocalID, 55); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	counts, err := svc.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Pending != 0 || counts.Synced != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}

	stored, err := svc.GetByVerificationCode(ctx, sale.VerificationCode)
	if err != nil {
		t.Fatalf("GetByVerificationCode: %v", err)
	}
	if stored == nil || stored.ServerSaleID == nil || *stored.ServerSaleID != 55 {
		t.Fatalf("synced sale must carry the server id, got %+v", stored)
	}
	if stored.SyncedAt == nil {
		t.Fatal("synced sale must carry a synced_at timestamp")
	}
}

func TestResetErrorsRespectsRetryCeiling(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Aceite", "100")
	ctx := context.Background()

	exhausted, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue exhausted: %v", err)
	}
	retryable, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue retryable: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := svc.MarkError(ctx, exhausted.LocalID, "HTTP 500"); err != nil {
			t.Fatalf("MarkError: %v", err)
		}
	}
	if err := svc.MarkError(ctx, retryable.LocalID, "HTTP 500"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}

	reset, err := svc.ResetErrors(ctx)
	if err != nil {
		t.Fatalf("ResetErrors: %v", err)
	}
	if reset != 1 {
		t.Fatalf("only the sale under the ceiling resets, got %d", reset)
	}

	stored, err := svc.GetByVerificationCode(ctx, exhausted.VerificationCode)
	if err != nil {
		t.Fatalf("GetByVerificationCode: %v", err)
	}
	if stored.Status != enums.SaleStatusError || stored.RetryCount != 5 {
		t.Fatalf("exhausted sale must stay errored, got %+v", stored)
	}

	// Idempotent: nothing left to reset.
	reset, err = svc.ResetErrors(ctx)
	if err != nil {
		t.Fatalf("second ResetErrors: %v", err)
	}
	if reset != 0 {
		t.Fatalf("second reset must be a no-op, got %d", reset)
	}
}

func TestRecoverStrandedRequeuesInFlightSales(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Azucar", "100")
	ctx := context.Background()

	stuck, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue stuck: %v", err)
	}
	delivered, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue delivered: %v", err)
	}

	// A crash between the in-flight mark and the outcome write leaves
	// the first sale flagged as syncing.
	if err := svc.MarkSyncing(ctx, stuck.LocalID); err != nil {
		t.Fatalf("MarkSyncing: %v", err)
	}
	if err := svc.MarkSynced(ctx, delivered.LocalID, 7); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	recovered, err := svc.RecoverStranded(ctx)
	if err != nil {
		t.Fatalf("RecoverStranded: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("only the stuck sale recovers, got %d", recovered)
	}

	stored, _ := svc.GetByVerificationCode(ctx, stuck.VerificationCode)
	if stored.Status != enums.SaleStatusPending || stored.RetryCount != 0 {
		t.Fatalf("recovered sale must be pending with its retries intact, got %+v", stored)
	}
	storedSynced, _ := svc.GetByVerificationCode(ctx, delivered.VerificationCode)
	if storedSynced.Status != enums.SaleStatusSynced {
		t.Fatalf("synced sales must not be touched, got %+v", storedSynced)
	}

	recovered, err = svc.RecoverStranded(ctx)
	if err != nil {
		t.Fatalf("second RecoverStranded: %v", err)
	}
	if recovered != 0 {
		t.Fatalf("second recovery must be a no-op, got %d", recovered)
	}
}

func TestQueueConcurrentCallsAllocateDistinctCodes(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Galletas", "100")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	codes := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := svc.Queue(ctx, saleOf(1, "1"), "")
			if err != nil {
				errs <- err
				return
			}
			codes <- sale.VerificationCode
		}()
	}
	wg.Wait()
	close(errs)
	close(codes)

	for err := range errs {
		t.Fatalf("concurrent Queue: %v", err)
	}
	seen := make(map[string]bool, workers)
	for code := range codes {
		if seen[code] {
			t.Fatalf("verification code %s issued twice", code)
		}
		seen[code] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d queued sales, got %d", workers, len(seen))
	}
}

func TestCleanupPurgesOnlyOldSyncedSales(t *testing.T) {
	svc, session := newTestService(t)
	seedProduct(t, session, 1, "Sal", "100")
	ctx := context.Background()

	old, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue old: %v", err)
	}
	fresh, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue fresh: %v", err)
	}
	unsynced, err := svc.Queue(ctx, saleOf(1, "1"), "")
	if err != nil {
		t.Fatalf("queue unsynced: %v", err)
	}

	// Sync the first sale ten days in the past, the second just now.
	svc.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, -10) }
	if err := svc.MarkSynced(ctx, old.LocalID, 1); err != nil {
		t.Fatalf("MarkSynced old: %v", err)
	}
	svc.now = func() time.Time { return time.Now().UTC() }
	if err := svc.MarkSynced(ctx, fresh.LocalID, 2); err != nil {
		t.Fatalf("MarkSynced fresh: %v", err)
	}

	removed, err := svc.Cleanup(ctx, 7)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("only the stale synced sale purges, got %d", removed)
	}

	if got, _ := svc.GetByVerificationCode(ctx, unsynced.VerificationCode); got == nil {
		t.Fatal("unsynced sales must never be purged")
	}
	if got, _ := svc.GetByVerificationCode(ctx, fresh.VerificationCode); got == nil {
		t.Fatal("recently synced sales must survive the retention window")
	}
	if got, _ := svc.GetByVerificationCode(ctx, old.VerificationCode); got != nil {
		t.Fatalf("stale synced sale must be gone, got %+v", got)
	}
}

func TestGetByVerificationCodeUnknownReturnsNil(t *testing.T) {
	svc, _ := newTestService(t)
	sale, err := svc.GetByVerificationCode(context.Background(), "VNT-0000000000000000-XXXX")
	if err != nil {
		t.Fatalf("GetByVerificationCode: %v", err)
	}
	if sale != nil {
		t.Fatalf("unknown code must return nil, got %+v", sale)
	}
}
