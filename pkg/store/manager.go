package store

import (
	"context"
	"sync"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	pkgerrors "github.com/Sirveme/quevendi-pos/pkg/errors"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
)

// Manager owns the single current tenant session. Switching tenants closes
// the prior session (running its close hooks) before the new store opens,
// so no two tenant stores are ever concurrently current.
type Manager struct {
	cfg  config.StoreConfig
	logg *logger.Logger

	mu      sync.Mutex
	current *Session
	opening *openCall
}

type openCall struct {
	tenantID string
	done     chan struct{}
	session  *Session
	err      error
}

// NewManager builds a session manager for the configured store directory.
func NewManager(cfg config.StoreConfig, logg *logger.Logger) *Manager {
	return &Manager{cfg: cfg, logg: logg}
}

// Open returns the session for tenantID, opening it if needed. A concurrent
// Open for the same tenant coalesces onto the in-flight open and shares its
// handle. Opening a different tenant closes the current session first.
func (m *Manager) Open(ctx context.Context, tenantID string) (*Session, error) {
	if tenantID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id is required")
	}

	m.mu.Lock()
	if m.current != nil && m.current.tenantID == tenantID && !m.current.isClosed() {
		session := m.current
		m.mu.Unlock()
		return session, nil
	}
	if m.opening != nil {
		call := m.opening
		m.mu.Unlock()
		if call.tenantID != tenantID {
			return nil, pkgerrors.New(pkgerrors.CodeStorage, "another tenant store open is in flight")
		}
		<-call.done
		return call.session, call.err
	}

	prior := m.current
	m.current = nil
	call := &openCall{tenantID: tenantID, done: make(chan struct{})}
	m.opening = call
	m.mu.Unlock()

	if prior != nil {
		if err := prior.Close(); err != nil && m.logg != nil {
			m.logg.Error(ctx, "closing prior tenant store", err)
		}
	}

	session, err := openSession(ctx, m.cfg, tenantID, m.logg)

	m.mu.Lock()
	m.opening = nil
	if err == nil {
		m.current = session
	}
	m.mu.Unlock()

	call.session, call.err = session, err
	close(call.done)
	return session, err
}

// Current returns the open session or fails loudly when none is open.
func (m *Manager) Current() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.isClosed() {
		return nil, pkgerrors.New(pkgerrors.CodeStorage, "no tenant store is open")
	}
	return m.current, nil
}

// Close shuts down the current session, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	session := m.current
	m.current = nil
	m.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}
