package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records reconciliation and connectivity activity.
type SyncMetrics struct {
	passDuration *prometheus.HistogramVec
	salesSynced  prometheus.Counter
	salesFailed  prometheus.Counter
	probeFailure prometheus.Counter
	online       prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	passDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_pass_duration_seconds",
		Help:    "Duration of reconciliation passes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	salesSynced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sales_synced_total",
		Help: "Pending sales successfully delivered to the server.",
	})
	salesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sale_sync_failures_total",
		Help: "Sale submissions recorded as errors.",
	})
	probeFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "connectivity_probe_failures_total",
		Help: "Health probes that failed or timed out.",
	})
	online := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connectivity_online",
		Help: "1 when the monitor considers the server reachable.",
	})
	reg.MustRegister(passDuration, salesSynced, salesFailed, probeFailure, online)
	return &SyncMetrics{
		passDuration: passDuration,
		salesSynced:  salesSynced,
		salesFailed:  salesFailed,
		probeFailure: probeFailure,
		online:       online,
	}
}

// ObservePass records the duration of a reconciliation pass.
func (m *SyncMetrics) ObservePass(trigger string, duration time.Duration) {
	if m == nil || m.passDuration == nil {
		return
	}
	if trigger == "" {
		trigger = "unknown"
	}
	m.passDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// AddSynced increments the delivered-sale counter.
func (m *SyncMetrics) AddSynced(n int) {
	if m == nil || m.salesSynced == nil || n <= 0 {
		return
	}
	m.salesSynced.Add(float64(n))
}

// AddFailed increments the failed-sale counter.
func (m *SyncMetrics) AddFailed(n int) {
	if m == nil || m.salesFailed == nil || n <= 0 {
		return
	}
	m.salesFailed.Add(float64(n))
}

// IncProbeFailure increments the probe failure counter.
func (m *SyncMetrics) IncProbeFailure() {
	if m == nil || m.probeFailure == nil {
		return
	}
	m.probeFailure.Inc()
}

// SetOnline flips the connectivity gauge.
func (m *SyncMetrics) SetOnline(online bool) {
	if m == nil || m.online == nil {
		return
	}
	if online {
		m.online.Set(1)
		return
	}
	m.online.Set(0)
}
