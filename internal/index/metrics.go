package index

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts index calls.
	// Labels: backend (cyborg, qdrant), op (upsert, query), outcome (ok, storage_error, timeout, invalid)
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragguard",
			Subsystem: "index",
			Name:      "requests_total",
			Help:      "Total number of index calls by backend, operation, and outcome",
		},
		[]string{"backend", "op", "outcome"},
	)

	// requestDuration tracks round-trip latency of index calls.
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragguard",
			Subsystem: "index",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of index calls in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"backend", "op"},
	)
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeout(err):
		return "timeout"
	case IsStorageError(err):
		return "storage_error"
	default:
		return "invalid"
	}
}

func observe(backend, op string, start time.Time, err error) {
	requestsTotal.WithLabelValues(backend, op, outcomeOf(err)).Inc()
	requestDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
