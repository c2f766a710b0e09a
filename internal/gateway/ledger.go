package gateway

import (
	"sync"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/validator"
)

// Pricing is the USD price per million tokens for a model tier.
type Pricing struct {
	InputPerMTok  float64 `yaml:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"output_per_mtok"`
}

// Cost returns the USD cost of one call.
func (p Pricing) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)*p.InputPerMTok/1e6 + float64(outputTokens)*p.OutputPerMTok/1e6
}

// LedgerTotals are running totals over every recorded attempt.
type LedgerTotals struct {
	Attempts       int64   `json:"attempts"`
	Failures       int64   `json:"failures"`
	CacheHits      int64   `json:"cache_hits"`
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	LatencyMsTotal int64   `json:"latency_ms_total"`
	Degraded       int64   `json:"degraded"`
	Validations    int64   `json:"validations"`
}

// CacheHitRate is the share of attempts served from cache.
func (t LedgerTotals) CacheHitRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.CacheHits) / float64(t.Attempts)
}

// FailureRate is the share of attempts that failed.
func (t LedgerTotals) FailureRate() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Failures) / float64(t.Attempts)
}

// DegradedRate is the share of validated responses below full level.
func (t LedgerTotals) DegradedRate() float64 {
	if t.Validations == 0 {
		return 0
	}
	return float64(t.Degraded) / float64(t.Validations)
}

// Ledger is the per-campaign cost and latency account. It keeps a bounded
// window of recent attempts and evaluates an optional budget cap.
type Ledger struct {
	Window       int
	BudgetCapUSD float64
	// WarnRatio is the fraction of budget at which a warning is issued (default 0.8).
	WarnRatio float64
	// HaltRatio is the fraction of budget at which calls are refused (default 1.0).
	HaltRatio float64

	mu     sync.Mutex
	recent []domain.CostDelta
	totals LedgerTotals
}

// NewLedger creates a ledger with standard thresholds.
func NewLedger(window int, budgetCapUSD float64) *Ledger {
	if window <= 0 {
		window = 50
	}
	return &Ledger{
		Window:       window,
		BudgetCapUSD: budgetCapUSD,
		WarnRatio:    0.8,
		HaltRatio:    1.0,
	}
}

// Record adds one attempt and returns the resulting budget action.
func (l *Ledger) Record(d domain.CostDelta) domain.CostAction {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append(l.recent, d)
	if over := len(l.recent) - l.Window; over > 0 {
		l.recent = append(l.recent[:0:0], l.recent[over:]...)
	}

	l.totals.Attempts++
	if !d.Success {
		l.totals.Failures++
	}
	if d.CacheHit {
		l.totals.CacheHits++
	}
	l.totals.InputTokens += d.InputTokens
	l.totals.OutputTokens += d.OutputTokens
	l.totals.CostUSD += d.AmountUSD
	l.totals.LatencyMsTotal += d.LatencyMs

	return l.evaluate(l.totals.CostUSD)
}

// RecordLevel counts the fidelity a live response was accepted at.
func (l *Ledger) RecordLevel(level validator.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals.Validations++
	if level != validator.LevelFull {
		l.totals.Degraded++
	}
}

// Check evaluates the budget without recording anything.
func (l *Ledger) Check() domain.CostAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evaluate(l.totals.CostUSD)
}

// Totals returns a copy of the running totals.
func (l *Ledger) Totals() LedgerTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals
}

// Recent returns a copy of the recent-history window, oldest first.
func (l *Ledger) Recent() []domain.CostDelta {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.CostDelta, len(l.recent))
	copy(out, l.recent)
	return out
}

func (l *Ledger) evaluate(used float64) domain.CostAction {
	if l.BudgetCapUSD <= 0 {
		return domain.CostContinue
	}
	ratio := used / l.BudgetCapUSD
	if ratio >= l.HaltRatio {
		return domain.CostHalt
	}
	if ratio >= l.WarnRatio {
		return domain.CostWarn
	}
	return domain.CostContinue
}
