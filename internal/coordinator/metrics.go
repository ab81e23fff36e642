package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkpointsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recline_coordinator_checkpoints_total",
		Help: "Checkpoint notifications processed, by outcome",
	}, []string{"outcome"})

	episodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recline_recovery_episodes_total",
		Help: "Failure episodes handled, by mode and result",
	}, []string{"mode", "result"})

	affectedInstances = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recline_recovery_affected_instances",
		Help:    "Instances rolled back per failure episode",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	restoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recline_restore_dispatch_failures_total",
		Help: "Restore instructions the dispatcher rejected",
	})
)
