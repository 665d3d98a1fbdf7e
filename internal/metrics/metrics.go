// Package metrics defines the service's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymanager_validations_total",
			Help: "Validation requests by terminal result",
		},
		[]string{"result"},
	)

	mintsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keymanager_mints_total",
			Help: "Keys minted",
		},
	)

	revokesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keymanager_revokes_total",
			Help: "Keys revoked",
		},
	)

	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymanager_store_operations_total",
			Help: "Store gateway operations by outcome",
		},
		[]string{"operation", "status"},
	)

	storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keymanager_store_operation_duration_seconds",
			Help:    "Store gateway operation latency",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keymanager_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keymanager_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// ObserveValidation records a terminal validation outcome ("ok", "denied",
// "rate_limited", "error").
func ObserveValidation(result string) {
	validationsTotal.WithLabelValues(result).Inc()
}

func ObserveMint() { mintsTotal.Inc() }

func ObserveRevoke() { revokesTotal.Inc() }

// ObserveStoreOp records one gateway round trip.
func ObserveStoreOp(operation string, err error, started time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOpsTotal.WithLabelValues(operation, status).Inc()
	storeOpDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(route, code string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
