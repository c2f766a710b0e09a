package workflow

import (
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/gateway"
)

// HealthSignals are the inputs to campaign health scoring, each in [0, 1].
type HealthSignals struct {
	FailureRate   float64
	DegradedRate  float64
	CacheHitRate  float64
	ClockPressure float64
	FullClocks    []string
}

// SignalsFrom derives health signals from ledger totals and clocks.
func SignalsFrom(t gateway.LedgerTotals, clocks []domain.Clock) HealthSignals {
	s := HealthSignals{
		FailureRate:  t.FailureRate(),
		DegradedRate: t.DegradedRate(),
		CacheHitRate: t.CacheHitRate(),
	}
	var sum float64
	var n int
	for _, c := range clocks {
		if c.Max <= 0 {
			continue
		}
		sum += float64(c.Value) / float64(c.Max)
		n++
		if c.Value >= c.Max {
			s.FullClocks = append(s.FullClocks, c.Name)
		}
	}
	if n > 0 {
		s.ClockPressure = sum / float64(n)
	}
	return s
}

// HealthReport is the result of one scoring pass.
type HealthReport struct {
	Score   float64              `json:"score"`
	Verdict domain.HealthVerdict `json:"verdict"`
	Reasons []string             `json:"reasons,omitempty"`
}

// HealthScorer combines signals into a weighted score.
type HealthScorer struct {
	Weights map[string]float64
}

// DefaultHealthWeights returns the standard signal weights.
func DefaultHealthWeights() map[string]float64 {
	return map[string]float64{
		"narrator":   0.40,
		"validation": 0.25,
		"cache":      0.05,
		"clocks":     0.30,
	}
}

// NewHealthScorer creates a scorer with the given weight map.
func NewHealthScorer(weights map[string]float64) *HealthScorer {
	return &HealthScorer{Weights: weights}
}

// Evaluate scores s. A failure rate of one half or more, or any full
// clock, forces a critical verdict regardless of the score.
func (h *HealthScorer) Evaluate(s HealthSignals) HealthReport {
	parts := map[string]float64{
		"narrator":   1 - s.FailureRate,
		"validation": 1 - s.DegradedRate,
		"cache":      s.CacheHitRate,
		"clocks":     1 - s.ClockPressure,
	}

	var weighted, total float64
	for name, v := range parts {
		w := 1.0
		if hw, ok := h.Weights[name]; ok {
			w = hw
		}
		weighted += v * w
		total += w
	}
	score := 0.0
	if total > 0 {
		score = weighted / total
	}

	var verdict domain.HealthVerdict
	switch {
	case score >= 0.75:
		verdict = domain.HealthHealthy
	case score >= 0.5:
		verdict = domain.HealthStrained
	default:
		verdict = domain.HealthCritical
	}

	var reasons []string
	if s.FailureRate >= 0.5 {
		reasons = append(reasons, fmt.Sprintf("narrator failure rate %.0f%%", s.FailureRate*100))
	}
	for _, name := range s.FullClocks {
		reasons = append(reasons, fmt.Sprintf("clock %q is full", name))
	}
	if len(reasons) > 0 {
		verdict = domain.HealthCritical
	}
	return HealthReport{Score: score, Verdict: verdict, Reasons: reasons}
}
