// Package metrics defines the Prometheus metric collectors used across the
// search engine and the operations server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	SearchTruncatedTotal prometheus.Counter
	ResultCacheHitsTotal prometheus.Counter
	ShardLoadsTotal      *prometheus.CounterVec
	ShardLoadDuration    *prometheus.HistogramVec
	IndexEntries         prometheus.Gauge
	StaleResultsDropped  prometheus.Counter
	NavigationsTotal     *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbol_search_queries_total",
				Help: "Total symbol searches by result type (results, zero_result, empty, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "symbol_search_latency_seconds",
				Help:    "Symbol search latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "symbol_search_result_groups",
				Help:    "Number of result groups returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		SearchTruncatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "symbol_search_truncated_total",
				Help: "Searches whose result list was cut at the configured maximum.",
			},
		),
		ResultCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "symbol_search_result_cache_hits_total",
				Help: "Searches answered from the result cache.",
			},
		),
		ShardLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_loads_total",
				Help: "Shard loads by category and status (ok, missing, fetch_error, parse_error).",
			},
			[]string{"category", "status"},
		),
		ShardLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shard_load_duration_seconds",
				Help:    "Shard fetch and parse latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"status"},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "symbol_index_entries",
				Help: "Logical entries currently held by the symbol index.",
			},
		),
		StaleResultsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "session_stale_results_dropped_total",
				Help: "Search results discarded because a newer query superseded them.",
			},
		),
		NavigationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navigations_total",
				Help: "Navigation attempts by outcome (resolved, unresolved).",
			},
			[]string{"outcome"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions",
				Help: "Number of open interactive search sessions.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.SearchTruncatedTotal,
		m.ResultCacheHitsTotal,
		m.ShardLoadsTotal,
		m.ShardLoadDuration,
		m.IndexEntries,
		m.StaleResultsDropped,
		m.NavigationsTotal,
		m.ActiveSessions,
		m.CircuitBreakerState,
	)

	return m
}
