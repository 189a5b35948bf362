package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repodeploy_runs_total",
		Help: "Finished pipeline runs by result and failure kind",
	}, []string{"result", "kind"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "repodeploy_stage_duration_seconds",
		Help:    "Time spent in each pipeline state",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
	}, []string{"stage"})

	probeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repodeploy_probe_attempts",
		Help:    "Readiness checks issued per probed run",
		Buckets: []float64{1, 2, 5, 10, 20, 35, 50},
	})
)
