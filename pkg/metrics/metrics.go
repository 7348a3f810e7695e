// Package metrics defines the Prometheus metric collectors used by the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         prometheus.Histogram
	CandidatesRanked     prometheus.Histogram
	AuthzChecksTotal     *prometheus.CounterVec
	AuthzCheckLatency    prometheus.Histogram
	DocumentsBlocked     prometheus.Counter
	DocumentsUsed        prometheus.Counter
	RankCacheHitsTotal   prometheus.Counter
	RankCacheMissesTotal prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
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
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Total pipeline queries by outcome (composed, empty_after_gate, no_candidates, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "End-to-end pipeline latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		CandidatesRanked: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "candidates_ranked",
				Help:    "Number of candidates returned by ranking per query.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
			},
		),
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authz_checks_total",
				Help: "Total authorization checks by decision (allowed, denied, error, timeout).",
			},
			[]string{"decision"},
		),
		AuthzCheckLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authz_check_latency_seconds",
				Help:    "Latency of a single authorization check in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
		DocumentsBlocked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_blocked_total",
				Help: "Total candidate documents withheld by the authorization gate.",
			},
		),
		DocumentsUsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_used_total",
				Help: "Total candidate documents included in composed answers.",
			},
		),
		RankCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rank_cache_hits_total",
				Help: "Total rank cache hits.",
			},
		),
		RankCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rank_cache_misses_total",
				Help: "Total rank cache misses.",
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

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.CandidatesRanked,
		m.AuthzChecksTotal,
		m.AuthzCheckLatency,
		m.DocumentsBlocked,
		m.DocumentsUsed,
		m.RankCacheHitsTotal,
		m.RankCacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
