// Package workflow implements the scene lifecycle state machine and the
// orchestrator that resolves exchanges through the narrator.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/exchange"
	"github.com/taleforge/sceneengine/internal/gateway"
)

// Decision is the outcome of evaluating a gate.
type Decision struct {
	Allow    bool
	Blockers []string
	// Err is the sentinel a blocked decision maps to.
	Err *domain.EngineError
}

// Gate decides whether a scene may enter RESOLVING.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, scene *domain.Scene, force bool) (Decision, error)
}

// ReadinessGate blocks until every participant acted, unless forced.
type ReadinessGate struct{}

// Name returns the gate name.
func (g *ReadinessGate) Name() string { return "readiness" }

// Evaluate checks the scene's exchange state.
func (g *ReadinessGate) Evaluate(_ context.Context, scene *domain.Scene, force bool) (Decision, error) {
	if exchange.CanResolve(scene, force) {
		return Decision{Allow: true}, nil
	}
	missing := exchange.Missing(scene)
	blocker := "no action submitted yet"
	if len(missing) > 0 {
		blocker = "waiting on " + strings.Join(missing, ", ")
	}
	return Decision{Blockers: []string{blocker}, Err: domain.ErrNotReady}, nil
}

// BudgetGate blocks when the campaign's narrator spend reached the halt ratio.
type BudgetGate struct {
	Registry *gateway.Registry
}

// Name returns the gate name.
func (g *BudgetGate) Name() string { return "budget" }

// Evaluate checks the campaign ledger.
func (g *BudgetGate) Evaluate(_ context.Context, scene *domain.Scene, _ bool) (Decision, error) {
	if g.Registry == nil {
		return Decision{Allow: true}, nil
	}
	if g.Registry.Ledger(scene.CampaignID).Check() == domain.CostHalt {
		return Decision{Blockers: []string{"budget limit exceeded"}, Err: domain.ErrBudgetExceeded}, nil
	}
	return Decision{Allow: true}, nil
}

// GateChain evaluates gates in order and stops at the first block.
type GateChain []Gate

// Evaluate returns nil when every gate allows, otherwise an EngineError
// derived from the blocking gate.
func (c GateChain) Evaluate(ctx context.Context, scene *domain.Scene, force bool) error {
	for _, g := range c {
		d, err := g.Evaluate(ctx, scene, force)
		if err != nil {
			return fmt.Errorf("evaluate %s gate: %w", g.Name(), err)
		}
		if d.Allow {
			continue
		}
		sentinel := d.Err
		if sentinel == nil {
			sentinel = domain.ErrNotReady
		}
		return domain.NewEngineError(sentinel, fmt.Sprintf("%s gate blocked: %s", g.Name(), strings.Join(d.Blockers, "; ")))
	}
	return nil
}
