package workflow

import (
	"math"
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/gateway"
)

func TestHealthScorer_Healthy(t *testing.T) {
	h := NewHealthScorer(DefaultHealthWeights())
	r := h.Evaluate(HealthSignals{CacheHitRate: 0.5, ClockPressure: 0.2})
	if r.Verdict != domain.HealthHealthy {
		t.Errorf("Verdict = %s, want healthy (score %.2f)", r.Verdict, r.Score)
	}
	// 0.40 + 0.25 + 0.05*0.5 + 0.30*0.8 = 0.915
	if math.Abs(r.Score-0.915) > 1e-9 {
		t.Errorf("Score = %f, want 0.915", r.Score)
	}
}

func TestHealthScorer_Strained(t *testing.T) {
	h := NewHealthScorer(DefaultHealthWeights())
	r := h.Evaluate(HealthSignals{FailureRate: 0.2, DegradedRate: 0.6, ClockPressure: 0.5})
	if r.Verdict != domain.HealthStrained {
		t.Errorf("Verdict = %s (score %.2f), want strained", r.Verdict, r.Score)
	}
}

func TestHealthScorer_CriticalOverrides(t *testing.T) {
	h := NewHealthScorer(DefaultHealthWeights())
	r := h.Evaluate(HealthSignals{FullClocks: []string{"Doom"}})
	if r.Verdict != domain.HealthCritical {
		t.Errorf("Verdict = %s, want critical", r.Verdict)
	}
	if len(r.Reasons) != 1 {
		t.Errorf("Reasons = %v", r.Reasons)
	}
}

func TestSignalsFrom(t *testing.T) {
	totals := gateway.LedgerTotals{Attempts: 4, Failures: 1, CacheHits: 2, Validations: 2, Degraded: 1}
	clocks := []domain.Clock{{Name: "A", Value: 2, Max: 4}, {Name: "B", Value: 6, Max: 6}, {Name: "C", Max: 0}}
	s := SignalsFrom(totals, clocks)
	if s.FailureRate != 0.25 || s.CacheHitRate != 0.5 || s.DegradedRate != 0.5 {
		t.Errorf("rates = %+v", s)
	}
	if s.ClockPressure != 0.75 {
		t.Errorf("ClockPressure = %f, want 0.75", s.ClockPressure)
	}
	if len(s.FullClocks) != 1 || s.FullClocks[0] != "B" {
		t.Errorf("FullClocks = %v", s.FullClocks)
	}
}
