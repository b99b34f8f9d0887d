package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the data-access layer.
// A nil *Metrics is valid and records nothing, so components can take it as
// an optional dependency.
type Metrics struct {
	PoolsOpen         prometheus.Gauge
	PoolConstructions *prometheus.CounterVec
	ConnectAttempts   *prometheus.CounterVec
	AcquireTimeouts   *prometheus.CounterVec
	AcquireWait       *prometheus.HistogramVec
	SessionsTotal     *prometheus.CounterVec
	AuditEntries      *prometheus.CounterVec
	AuditFailures     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// Passing a fresh prometheus.NewRegistry() keeps tests isolated.
//
// Metrics:
//   - tenantcore_pools_open - pools currently cached
//   - tenantcore_pool_constructions_total{mode,outcome}
//   - tenantcore_pool_connect_attempts_total{outcome}
//   - tenantcore_pool_acquire_timeouts_total{pool}
//   - tenantcore_pool_acquire_wait_seconds{mode}
//   - tenantcore_sessions_total{outcome} - committed / rolled_back
//   - tenantcore_audit_entries_total{kind,critical}
//   - tenantcore_audit_failures_total{stage}
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantcore_pools_open",
			Help: "Number of connection pools currently cached",
		}),
		PoolConstructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_pool_constructions_total",
			Help: "Pool construction attempts by isolation mode and outcome",
		}, []string{"mode", "outcome"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_pool_connect_attempts_total",
			Help: "Individual connection attempts made while building pools",
		}, []string{"outcome"}),
		AcquireTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_pool_acquire_timeouts_total",
			Help: "Connection acquisitions that gave up because the pool was saturated",
		}, []string{"pool"}),
		AcquireWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenantcore_pool_acquire_wait_seconds",
			Help:    "Time spent waiting for a pooled connection",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"mode"}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_sessions_total",
			Help: "Finished session scopes by outcome",
		}, []string{"outcome"}),
		AuditEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_audit_entries_total",
			Help: "Audit entries persisted by change kind and criticality",
		}, []string{"kind", "critical"}),
		AuditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantcore_audit_failures_total",
			Help: "Audit entries that could not be persisted",
		}, []string{"stage"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PoolsOpen,
			m.PoolConstructions,
			m.ConnectAttempts,
			m.AcquireTimeouts,
			m.AcquireWait,
			m.SessionsTotal,
			m.AuditEntries,
			m.AuditFailures,
		)
	}
	return m
}

func (m *Metrics) PoolOpened() {
	if m != nil {
		m.PoolsOpen.Inc()
	}
}

func (m *Metrics) PoolsClosed(n int) {
	if m != nil {
		m.PoolsOpen.Sub(float64(n))
	}
}

func (m *Metrics) PoolConstruction(mode, outcome string) {
	if m != nil {
		m.PoolConstructions.WithLabelValues(mode, outcome).Inc()
	}
}

func (m *Metrics) ConnectAttempt(ok bool) {
	if m != nil {
		m.ConnectAttempts.WithLabelValues(outcome(ok, "success", "failure")).Inc()
	}
}

func (m *Metrics) AcquireTimeout(pool string) {
	if m != nil {
		m.AcquireTimeouts.WithLabelValues(pool).Inc()
	}
}

func (m *Metrics) ObserveAcquire(mode string, d time.Duration) {
	if m != nil {
		m.AcquireWait.WithLabelValues(mode).Observe(d.Seconds())
	}
}

func (m *Metrics) SessionFinished(committed bool) {
	if m != nil {
		m.SessionsTotal.WithLabelValues(outcome(committed, "committed", "rolled_back")).Inc()
	}
}

func (m *Metrics) AuditRecorded(kind string, critical bool) {
	if m != nil {
		m.AuditEntries.WithLabelValues(kind, outcome(critical, "true", "false")).Inc()
	}
}

func (m *Metrics) AuditFailed(stage string) {
	if m != nil {
		m.AuditFailures.WithLabelValues(stage).Inc()
	}
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
