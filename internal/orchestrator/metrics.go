package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished runs.
	// Labels: status (success, degraded, failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchpad",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by final status",
		},
		[]string{"status"},
	)

	// StageDuration tracks how long each stage attempt takes.
	// Labels: stage, outcome (succeeded, recovered, failed)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launchpad",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 1800},
		},
		[]string{"stage", "outcome"},
	)

	// CompensationsTotal counts executed compensating actions.
	// Labels: status (reversed, not_reversible, failed)
	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchpad",
			Subsystem: "pipeline",
			Name:      "compensations_total",
			Help:      "Total number of compensating actions by outcome",
		},
		[]string{"status"},
	)

	// RecoveriesTotal counts successful recoveries.
	// Labels: kind (failure kind)
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchpad",
			Subsystem: "pipeline",
			Name:      "recoveries_total",
			Help:      "Total number of successful recoveries by failure kind",
		},
		[]string{"kind"},
	)
)
