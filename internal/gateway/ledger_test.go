package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/validator"
)

func TestPricing_Cost(t *testing.T) {
	p := Pricing{InputPerMTok: 3, OutputPerMTok: 15}
	assert.InDelta(t, 0.0045, p.Cost(1000, 100), 1e-9)
}

func TestLedger_WindowAndTotals(t *testing.T) {
	l := NewLedger(3, 0)
	for i := 0; i < 5; i++ {
		l.Record(domain.CostDelta{InputTokens: 10, OutputTokens: 5, AmountUSD: 0.01, Success: i != 4, CacheHit: i == 0})
	}

	recent := l.Recent()
	assert.Len(t, recent, 3)
	assert.False(t, recent[2].Success)

	tot := l.Totals()
	assert.EqualValues(t, 5, tot.Attempts)
	assert.EqualValues(t, 1, tot.Failures)
	assert.EqualValues(t, 50, tot.InputTokens)
	assert.InDelta(t, 0.05, tot.CostUSD, 1e-9)
	assert.InDelta(t, 0.2, tot.CacheHitRate(), 1e-9)
	assert.InDelta(t, 0.2, tot.FailureRate(), 1e-9)
}

func TestLedger_Budget(t *testing.T) {
	tests := []struct {
		spent float64
		want  domain.CostAction
	}{
		{0.5, domain.CostContinue},
		{0.8, domain.CostWarn},
		{1.0, domain.CostHalt},
	}
	for _, tt := range tests {
		l := NewLedger(10, 1.0)
		got := l.Record(domain.CostDelta{AmountUSD: tt.spent, Success: true})
		assert.Equal(t, tt.want, got, "spent %.2f", tt.spent)
		assert.Equal(t, tt.want, l.Check())
	}
}

func TestLedger_NoCapNeverHalts(t *testing.T) {
	l := NewLedger(10, 0)
	assert.Equal(t, domain.CostContinue, l.Record(domain.CostDelta{AmountUSD: 1e6}))
}

func TestLedger_DegradedRate(t *testing.T) {
	l := NewLedger(10, 0)
	l.RecordLevel(validator.LevelFull)
	l.RecordLevel(validator.LevelPartial)
	l.RecordLevel(validator.LevelEmergency)
	l.RecordLevel(validator.LevelFull)
	assert.InDelta(t, 0.5, l.Totals().DegradedRate(), 1e-9)
}
