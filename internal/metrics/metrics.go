// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Provider request metrics
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_provider_requests_total",
			Help: "Total number of provider calls by outcome",
		},
		[]string{"provider", "operation", "outcome"}, // success, session_missing, session_invalid, network, parse
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_provider_request_duration_seconds",
			Help:    "Provider call duration in seconds, including rate-limit waits",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	RateLimitDelaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rate_limit_delays_total",
			Help: "Provider calls that waited for the rate-limit window to reset",
		},
		[]string{"provider"},
	)

	DeduplicatedRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_deduplicated_requests_total",
			Help: "Provider calls served by an identical in-flight request",
		},
		[]string{"provider", "operation"},
	)

	SessionRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_session_refreshes_total",
			Help: "Session refresh attempts by result",
		},
		[]string{"provider", "result"},
	)

	// Session metrics
	ActiveSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Number of unexpired provider sessions in the store",
		},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_extractions_total",
			Help: "Session extractions by outcome",
		},
		[]string{"provider", "outcome"}, // message, fallback, kept_existing, script_error
	)

	// Heartbeat metrics
	HeartbeatChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_heartbeat_checks_total",
			Help: "Heartbeat ticks by result",
		},
		[]string{"provider", "result"}, // ok, failed, session_expired, connection_lost
	)

	// Aggregation metrics
	AggregationProviderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_aggregation_provider_failures_total",
			Help: "Provider fetches omitted from an aggregation pass",
		},
		[]string{"provider", "operation"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cache_requests_total",
			Help: "Aggregation cache lookups by result",
		},
		[]string{"cache", "result"}, // hit, miss
	)

	PortfolioValueGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_portfolio_total_value",
			Help: "Total market value from the latest summary",
		},
	)
)

// RecordProviderRequest records the outcome and duration of a provider call.
func RecordProviderRequest(provider, operation, outcome string, duration float64) {
	ProviderRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration)
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(method, route, statusCode string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordCache records a cache lookup.
func RecordCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(cache, result).Inc()
}
