package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// asksTotal counts questions by outcome kind.
	asksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragguard",
			Subsystem: "retrieval",
			Name:      "asks_total",
			Help:      "Total number of questions by result kind",
		},
		[]string{"kind"},
	)

	// droppedCandidates counts over-fetched candidates removed by the access filter.
	droppedCandidates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragguard",
			Subsystem: "retrieval",
			Name:      "unauthorized_candidates_total",
			Help:      "Candidates returned by the index and discarded by the access filter",
		},
	)
)
