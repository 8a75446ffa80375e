// Package connectivity tracks whether the remote server is reachable,
// probing its health endpoint on a cadence and debouncing flaps so one
// dropped request does not flip the till offline.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sirveme/quevendi-pos/pkg/config"
	"github.com/Sirveme/quevendi-pos/pkg/logger"
	"github.com/Sirveme/quevendi-pos/pkg/metrics"
)

// Listener is called synchronously, exactly once per state transition.
type Listener func(online bool)

// MonitorParams bundles the monitor dependencies.
type MonitorParams struct {
	Prober  Prober
	Config  config.SyncConfig
	Metrics *metrics.SyncMetrics
	Logger  *logger.Logger
}

// Monitor owns the online/offline state of the client. Going offline
// takes OfflineThreshold consecutive probe failures; coming back online
// takes a single success.
type Monitor struct {
	prober          Prober
	threshold       int
	interval        time.Duration
	offlineInterval time.Duration
	probeTimeout    time.Duration
	met             *metrics.SyncMetrics
	logg            *logger.Logger

	mu        sync.Mutex
	online    bool
	failures  int
	listeners []Listener

	kick chan struct{}
}

// NewMonitor builds a connectivity monitor. It starts offline; the first
// successful probe flips it online.
func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Prober == nil {
		return nil, fmt.Errorf("prober required")
	}
	cfg := params.Config
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = 2
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeIntervalOffline <= 0 {
		cfg.ProbeIntervalOffline = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Monitor{
		prober:          params.Prober,
		threshold:       cfg.OfflineThreshold,
		interval:        cfg.ProbeInterval,
		offlineInterval: cfg.ProbeIntervalOffline,
		probeTimeout:    cfg.ProbeTimeout,
		met:             params.Metrics,
		logg:            params.Logger,
		kick:            make(chan struct{}, 1),
	}, nil
}

// Subscribe registers a transition listener. Register before Run starts.
func (m *Monitor) Subscribe(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check probes the server once and applies the result to the state
// machine. It returns the state after the probe.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()
	if err != nil {
		m.met.IncProbeFailure()
		m.recordFailure(ctx, err)
	} else {
		m.recordSuccess(ctx)
	}
	return m.Online()
}

// LinkDown forces the offline state immediately, bypassing the failure
// threshold. Used when the host network interface reports loss of link.
func (m *Monitor) LinkDown(ctx context.Context) {
	m.mu.Lock()
	m.failures = m.threshold
	listeners := m.transitionLocked(false)
	m.mu.Unlock()
	m.notify(ctx, listeners, false, "network link lost")
}

// LinkUp requests an immediate probe. The state only changes if the
// probe succeeds; a restored link with an unreachable server stays
// offline.
func (m *Monitor) LinkUp() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run probes on a cadence until ctx is done: every ProbeInterval while
// online, every ProbeIntervalOffline while offline so recovery is
// noticed quickly.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	for {
		timer := time.NewTimer(m.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-m.kick:
			timer.Stop()
		case <-timer.C:
		}
		m.Check(ctx)
	}
}

func (m *Monitor) currentInterval() time.Duration {
	if m.Online() {
		return m.interval
	}
	return m.offlineInterval
}

func (m *Monitor) recordSuccess(ctx context.Context) {
	m.mu.Lock()
	m.failures = 0
	listeners := m.transitionLocked(true)
	m.mu.Unlock()
	m.notify(ctx, listeners, true, "server reachable")
}

func (m *Monitor) recordFailure(ctx context.Context, err error) {
	m.mu.Lock()
	m.failures++
	var listeners []Listener
	if m.failures >= m.threshold {
		listeners = m.transitionLocked(false)
	}
	failures := m.failures
	m.mu.Unlock()
	if listeners != nil {
		m.notify(ctx, listeners, false, "server unreachable")
	} else if m.logg != nil {
		m.logg.Warn(m.logg.WithField(ctx, "failures", failures), "health probe failed")
		_ = err
	}
}

// transitionLocked flips the state if it changed and returns the
// listeners to notify, or nil when the state did not change. Callers
// hold m.mu.
func (m *Monitor) transitionLocked(online bool) []Listener {
	if m.online == online {
		return nil
	}
	m.online = online
	snapshot := make([]Listener, len(m.listeners))
	copy(snapshot, m.listeners)
	return snapshot
}

func (m *Monitor) notify(ctx context.Context, listeners []Listener, online bool, reason string) {
	if listeners == nil {
		return
	}
	m.met.SetOnline(online)
	if m.logg != nil {
		state := "offline"
		if online {
			state = "online"
		}
		m.logg.Info(m.logg.WithField(ctx, "state", state), reason)
	}
	for _, fn := range listeners {
		fn(online)
	}
}
