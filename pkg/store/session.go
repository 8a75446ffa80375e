package store

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/migrate"
)

// Session wraps the GORM connection for one tenant's embedded store.
type Session struct {
	tenantID string
	conn     *gorm.DB
	logg     *logger.Logger

	mu         sync.Mutex
	closed     bool
	closeHooks []func()
}

func openSession(ctx context.Context, cfg config.StoreConfig, tenantID string, logg *logger.Logger) (*Session, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "creating store directory")
	}

	busyMillis := cfg.BusyTimeout.Milliseconds()
	if busyMillis <= 0 {
		busyMillis = (5 * time.Second).Milliseconds()
	}
	path := filepath.Join(cfg.Dir, fmt.Sprintf("quevendi_%s.db", tenantID))
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, busyMillis)

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, classifyOpenError(err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "getting sql db handle")
	}
	// A single connection serializes every transaction through SQLite's own
	// queue, which is the ordering guarantee the rest of the system assumes.
	sqlDB.SetMaxOpenConns(1)

	if err := migrate.Up(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, classifyOpenError(err)
	}

	if logg != nil {
		logg.Info(logg.WithTenantID(ctx, tenantID), "tenant store opened")
	}

	return &Session{tenantID: tenantID, conn: conn, logg: logg}, nil
}

func classifyOpenError(err error) error {
	if isLocked(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreBlocked, err, "embedded engine could not acquire exclusive access")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "opening tenant store")
}

func isLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// TenantID returns the tenant this session belongs to.
func (s *Session) TenantID() string {
	return s.tenantID
}

// DB returns the underlying GORM connection.
func (s *Session) DB() *gorm.DB {
	return s.conn
}

// Ping verifies the embedded store file is still usable.
func (s *Session) Ping(ctx context.Context) error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn inside a transaction, rolling back on error/panic.
// Every mutating operation in the system goes through here.
func (s *Session) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := s.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, tx.Error, "begin transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "commit transaction")
	}
	return nil
}

// OnClose registers a hook that runs when the session closes. Components
// bind timers and loops to the session through this so a tenant switch
// cancels them before the next store opens.
func (s *Session) OnClose(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		fn()
		return
	}
	s.closeHooks = append(s.closeHooks, fn)
}

// Close runs the close hooks and shuts the connection down. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.closeHooks
	s.closeHooks = nil
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
