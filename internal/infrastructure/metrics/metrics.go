// Package metrics exposes Prometheus instrumentation for the session layer
// and the data-store gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors for one server instance. Each instance owns
// its own registry so tests can construct them freely.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	Queries         *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mcp_active_sessions",
			Help: "Number of currently active sessions.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mcp_sessions_created_total",
			Help: "Total number of sessions created.",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_queries_total",
			Help: "Total number of data-store queries by outcome.",
		}, []string{"outcome"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcp_query_duration_seconds",
			Help:    "Data-store query latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.ActiveSessions,
		m.SessionsCreated,
		m.Queries,
		m.QueryDuration,
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
