package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/store/models"
	"gorm.io/gorm"
)

func testConfig(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{Dir: t.TempDir(), BusyTimeout: time.Second}
}

func TestManagerOpenRunsMigrations(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	session, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	var count int64
	if err := session.DB().Model(&models.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("products table should exist: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty products table, got %d rows", count)
	}
}

func TestManagerOpenSameTenantReturnsSameHandle(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	first, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	second, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if first != second {
		t.Fatal("expected the same session handle for the same tenant")
	}
}

func TestManagerConcurrentOpensCoalesce(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	defer m.Close()

	const callers = 8
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Open(context.Background(), "42")
			if err != nil {
				t.Errorf("Open %d: %v", i, err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent opens must share one session")
		}
	}
}

func TestManagerSwitchTenantClosesPrior(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	first, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	hookRan := false
	first.OnClose(func() { hookRan = true })

	second, err := m.Open(context.Background(), "87")
	if err != nil {
		t.Fatalf("Open second tenant: %v", err)
	}
	defer m.Close()

	if !hookRan {
		t.Fatal("switching tenants must run the prior session's close hooks")
	}
	if !first.isClosed() {
		t.Fatal("prior session must be closed")
	}
	current, err := m.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current != second || current.TenantID() != "87" {
		t.Fatalf("expected tenant 87 current, got %q", current.TenantID())
	}
}

func TestManagerCurrentFailsWhenNothingOpen(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	if _, err := m.Current(); !pkgerrors.HasCode(err, pkgerrors.CodeStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestSessionWithTxRollsBackOnError(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	session, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	boom := pkgerrors.New(pkgerrors.CodeValidation, "boom")
	err = session.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&models.SyncMeta{Key: "k", Value: "v", UpdatedAt: time.Now()}).Error; err != nil {
			return err
		}
		return boom
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected the inner error back, got %v", err)
	}

	var count int64
	if err := session.DB().Model(&models.SyncMeta{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rollback expected, found %d rows", count)
	}
}

func TestMetaDeviceIDStable(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	session, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	meta := NewMeta(session)
	first, err := meta.DeviceID(context.Background())
	if err != nil {
		t.Fatalf("DeviceID: %v", err)
	}
	if len(first) < 5 || first[:4] != "DEV-" {
		t.Fatalf("unexpected device id %q", first)
	}
	second, err := meta.DeviceID(context.Background())
	if err != nil {
		t.Fatalf("DeviceID again: %v", err)
	}
	if first != second {
		t.Fatalf("device id must be stable, got %q then %q", first, second)
	}
}

func TestMetaSetOverwrites(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	session, err := m.Open(context.Background(), "42")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer m.Close()

	meta := NewMeta(session)
	ctx := context.Background()
	if err := meta.Set(ctx, "w", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := meta.Set(ctx, "w", "2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	value, ok, err := meta.Get(ctx, "w")
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if value != "2" {
		t.Fatalf("expected overwritten value, got %q", value)
	}
}
