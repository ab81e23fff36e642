package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkpointsTaken = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recline_checkpoints_taken_total",
		Help: "Local checkpoints taken, by protocol and whether they were forced",
	}, []string{"protocol", "forced"})

	barrierBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recline_barrier_blocked_connections_total",
		Help: "Upstream connections blocked while aligning barriers",
	})

	cicForcedChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recline_cic_condition_checks_total",
		Help: "Communication-induced condition evaluations, by outcome",
	}, []string{"outcome"})
)

func forcedLabel(forced bool) string {
	if forced {
		return "true"
	}
	return "false"
}
