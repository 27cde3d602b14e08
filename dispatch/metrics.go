package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hotpatch"

// Dispatch outcomes, used as the "outcome" label.
const (
	OutcomeNotHandled = "not_handled"
	OutcomeValue      = "wrapper_value"
	OutcomeBehavior   = "wrapper_behavior"
	OutcomeRegistry   = "registry"
	OutcomeError      = "error"
)

// Metrics holds the Prometheus collectors for an engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// DispatchTotal counts dispatches by phase and outcome.
	DispatchTotal *prometheus.CounterVec

	// DispatchDuration measures time spent inside Dispatch, override code included.
	DispatchDuration *prometheus.HistogramVec

	// CacheLookups counts registry and owner cache lookups by result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// WrappersInstalled tracks the number of runtime wrappers currently installed.
	WrappersInstalled prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient for tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_total",
			Help:      "Total dispatches by phase and outcome",
		}, []string{"phase", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch duration in seconds, including override execution",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
		}, []string{"phase"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Registry and owner cache lookups by result",
		}, []string{"cache", "result"}),
		WrappersInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "wrappers_installed",
			Help:      "Runtime wrappers currently installed",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DispatchTotal, m.DispatchDuration, m.CacheLookups, m.WrappersInstalled)
	}
	return m
}

func (m *Metrics) observeDispatch(phase Phase, outcome string, start time.Time) {
	if m == nil {
		return
	}
	p := phase.String()
	m.DispatchTotal.WithLabelValues(p, outcome).Inc()
	m.DispatchDuration.WithLabelValues(p).Observe(time.Since(start).Seconds())
}

func (m *Metrics) cacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) setWrappers(n int) {
	if m == nil {
		return
	}
	m.WrappersInstalled.Set(float64(n))
}
