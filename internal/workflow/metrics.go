package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for scene resolution.
var (
	// resolutions counts ResolveScene calls by outcome (resolved, refused, failed, timeout).
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneengine_resolutions_total",
		Help: "Total number of scene resolutions by outcome",
	}, []string{"outcome"})

	resolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sceneengine_resolution_duration_seconds",
		Help:    "Histogram of scene resolution wall time in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	scenesRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sceneengine_scenes_recovered_total",
		Help: "Total number of stuck RESOLVING scenes reset by recovery",
	})
)
