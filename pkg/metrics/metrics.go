package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	// Progress recomputations by scope (milestone, project) and result
	RollupRecomputeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_recompute_total",
			Help: "Total number of progress recomputations",
		},
		[]string{"scope", "result"},
	)

	// Side effects by name and result
	SideEffectCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effect_total",
			Help: "Total number of executed side effects",
		},
		[]string{"effect", "result"},
	)

	// Store query latency in seconds
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	// Status cache lookups by result (hit, miss, error)
	StatusCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_cache_lookups_total",
			Help: "User status cache lookups",
		},
		[]string{"result"},
	)
)

// RecordHTTPRequestDuration records one HTTP request.
func RecordHTTPRequestDuration(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordRollup records one recomputation.
func RecordRollup(scope string, err error) {
	RollupRecomputeCount.WithLabelValues(scope, result(err)).Inc()
}

// RecordSideEffect records one executed side effect.
func RecordSideEffect(name string, err error) {
	SideEffectCount.WithLabelValues(name, result(err)).Inc()
}

// RecordDBQueryDuration records one store query.
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStatusCacheLookup records a cache lookup outcome.
func RecordStatusCacheLookup(outcome string) {
	StatusCacheLookups.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
