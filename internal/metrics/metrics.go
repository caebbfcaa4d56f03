// Package metrics exposes Prometheus counters for imports, guard decisions
// and live subscriptions.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "member_dashboard"

// Metrics owns a registry and the collectors registered on it
type Metrics struct {
	registry *prometheus.Registry

	importRows     *prometheus.CounterVec
	importRuns     *prometheus.CounterVec
	importDuration prometheus.Histogram
	guardDecisions *prometheus.CounterVec
	subscribers    prometheus.Gauge
}

// New creates a registry with the process and Go collectors plus the
// service counters
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Import rows by outcome.",
		}, []string{"outcome"}),
		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by final state.",
		}, []string{"state"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Duration of confirmed import runs.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by decision.",
		}, []string{"decision"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Open member stream subscriptions.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.importRows,
		m.importRuns,
		m.importDuration,
		m.guardDecisions,
		m.subscribers,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchDB exports connection pool statistics for db
func (m *Metrics) WatchDB(db *sql.DB) {
	if m == nil {
		return
	}
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, namespace))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport records the outcome of one import run
func (m *Metrics) ObserveImport(state string, result *models.ImportResult, seconds float64) {
	if m == nil {
		return
	}
	m.importRuns.WithLabelValues(state).Inc()
	m.importDuration.Observe(seconds)
	if result == nil {
		return
	}
	m.importRows.WithLabelValues("success").Add(float64(result.Success))
	m.importRows.WithLabelValues("failed").Add(float64(result.Failed))
	m.importRows.WithLabelValues("duplicate").Add(float64(result.Duplicates))
}

// ObserveDecision counts one guard decision
func (m *Metrics) ObserveDecision(d authz.Decision) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(d.String()).Inc()
}

// SubscriberOpened and SubscriberClosed track open member streams
func (m *Metrics) SubscriberOpened() {
	if m != nil {
		m.subscribers.Inc()
	}
}

func (m *Metrics) SubscriberClosed() {
	if m != nil {
		m.subscribers.Dec()
	}
}
