package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calculations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recline_recovery_calculations_total",
		Help: "Recovery line calculations, by mode and result",
	}, []string{"mode", "result"})

	calcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recline_recovery_calculation_seconds",
		Help:    "Time spent computing one recovery line",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"mode"})

	downgrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recline_recovery_downgrades_total",
		Help: "Tentative assignments moved to an older checkpoint in independent mode",
	})
)
