package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taleforge/sceneengine/internal/domain"
)

// Metrics for narrator calls.
var (
	// narratorCalls counts attempts by outcome (hit, success, failure, blocked).
	narratorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneengine_narrator_calls_total",
		Help: "Total number of narrator attempts by outcome",
	}, []string{"outcome"})

	// narratorLatency tracks live narrator call latency.
	narratorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sceneengine_narrator_latency_seconds",
		Help:    "Histogram of live narrator call latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// validationLevels counts accepted responses by fidelity level.
	validationLevels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sceneengine_validation_level_total",
		Help: "Total number of narrator responses by validation level",
	}, []string{"level"})

	// narratorCost accumulates USD spent on live calls.
	narratorCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sceneengine_narrator_cost_usd_total",
		Help: "Total USD spent on narrator calls",
	})

	// breakerState is 0 closed, 1 half-open, 2 open.
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sceneengine_breaker_state",
		Help: "Circuit breaker state per campaign (0=closed, 1=half-open, 2=open)",
	}, []string{"campaign_id"})
)

func breakerGaugeValue(s domain.BreakerState) float64 {
	switch s {
	case domain.BreakerOpen:
		return 2
	case domain.BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}
