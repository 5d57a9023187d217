package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dholuo_ws_connections_active",
		Help: "Number of open relay connections",
	})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dholuo_ws_frames_total",
		Help: "Relay frames by direction and type",
	}, []string{"direction", "type"})

	TranslationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dholuo_translations_total",
		Help: "Translation lookups by strategy and outcome",
	}, []string{"strategy", "outcome"})

	BranchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dholuo_branch_duration_seconds",
		Help:    "Time to complete a relay branch",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"branch"})
)
