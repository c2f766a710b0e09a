package exchange

import (
	"fmt"
	"sort"
	"strings"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
)

// ConflictType classifies contradictory actions aimed at the same target.
type ConflictType string

const (
	// ConflictHostileParley is one actor attacking a target another is negotiating with.
	ConflictHostileParley ConflictType = "hostile_parley"
	// ConflictPvP is an actor attacking another acting character.
	ConflictPvP ConflictType = "pvp"
)

// Conflict describes two actions that pull the same target different ways.
type Conflict struct {
	Target  string
	ActionA domain.PlayerAction
	ActionB domain.PlayerAction
	Type    ConflictType
}

// Phase is one priority band of a decomposed exchange.
type Phase struct {
	Priority domain.ActionPriority
	Actions  []domain.PlayerAction
}

// Plan is the decomposition of a complex exchange.
type Plan struct {
	Phases    []Phase
	Conflicts []Conflict
	Guidance  string
}

// Entity is a named thing actions may target.
type Entity struct {
	ID   string
	Name string
}

// ConflictDetector finds contradictory actions within one exchange.
type ConflictDetector struct {
	Classifier classify.Classifier
}

// Decompose groups actions into phases ordered combat, movement, social,
// other and flags conflicts as narrator guidance. It never rejects actions.
func (d *ConflictDetector) Decompose(actions []domain.PlayerAction, entities []Entity, actors map[string]string) Plan {
	byPriority := make(map[domain.ActionPriority][]domain.PlayerAction)
	for _, a := range actions {
		p := a.Priority
		if p == "" {
			p = d.Classifier.Priority(a.ActionText)
		}
		byPriority[p] = append(byPriority[p], a)
	}

	var plan Plan
	for _, p := range domain.PriorityOrder {
		if len(byPriority[p]) > 0 {
			plan.Phases = append(plan.Phases, Phase{Priority: p, Actions: byPriority[p]})
		}
	}

	plan.Conflicts = d.Detect(actions, entities, actors)
	plan.Guidance = Guidance(plan, actors)
	return plan
}

// Detect returns pairwise conflicts between actions sharing a target.
// actors maps character IDs to names for actions in this exchange.
func (d *ConflictDetector) Detect(actions []domain.PlayerAction, entities []Entity, actors map[string]string) []Conflict {
	names := make([]string, 0, len(entities)+len(actors))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	for _, n := range actors {
		names = append(names, n)
	}
	sort.Strings(names)

	byTarget := make(map[string][]domain.PlayerAction)
	for _, a := range actions {
		for _, t := range classify.Targets(a.ActionText, names) {
			if strings.EqualFold(t, actors[a.CharacterID]) {
				continue
			}
			byTarget[t] = append(byTarget[t], a)
		}
	}

	targets := make([]string, 0, len(byTarget))
	for t := range byTarget {
		targets = append(targets, t)
	}
	sort.Strings(targets)

	var conflicts []Conflict
	for _, t := range targets {
		group := byTarget[t]
		for _, a := range group {
			if d.isCombat(a) && isActorName(actors, t) {
				conflicts = append(conflicts, Conflict{Target: t, ActionA: a, Type: ConflictPvP})
			}
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if c := d.DetectBetween(t, group[i], group[j]); c != nil {
					conflicts = append(conflicts, *c)
				}
			}
		}
	}
	return conflicts
}

// DetectBetween checks two actions aimed at target for a contradiction.
// Returns nil if they come from the same character or do not contradict.
func (d *ConflictDetector) DetectBetween(target string, a, b domain.PlayerAction) *Conflict {
	if a.CharacterID == b.CharacterID {
		return nil
	}
	if (d.isCombat(a) && d.isSocial(b)) || (d.isSocial(a) && d.isCombat(b)) {
		return &Conflict{Target: target, ActionA: a, ActionB: b, Type: ConflictHostileParley}
	}
	return nil
}

func (d *ConflictDetector) isCombat(a domain.PlayerAction) bool {
	return hasIntent(d.Classifier.Intents(a.ActionText), classify.IntentCombat)
}

func (d *ConflictDetector) isSocial(a domain.PlayerAction) bool {
	return hasIntent(d.Classifier.Intents(a.ActionText), classify.IntentSocial)
}

// Guidance renders the plan as narrator-facing instructions.
func Guidance(plan Plan, actors map[string]string) string {
	if len(plan.Phases) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Resolve this exchange in order:")
	for i, ph := range plan.Phases {
		who := make([]string, 0, len(ph.Actions))
		for _, a := range ph.Actions {
			who = append(who, nameOf(actors, a.CharacterID))
		}
		fmt.Fprintf(&b, " (%d) %s: %s.", i+1, ph.Priority, strings.Join(who, ", "))
	}
	for _, c := range plan.Conflicts {
		switch c.Type {
		case ConflictPvP:
			fmt.Fprintf(&b, " %s acts against fellow character %s; narrate the clash fairly.",
				nameOf(actors, c.ActionA.CharacterID), c.Target)
		case ConflictHostileParley:
			fmt.Fprintf(&b, " %s and %s pull %s in opposite directions; show how the contradiction plays out.",
				nameOf(actors, c.ActionA.CharacterID), nameOf(actors, c.ActionB.CharacterID), c.Target)
		}
	}
	return b.String()
}

// RequestPhases converts a plan into the narrator request shape.
func (p Plan) RequestPhases() []domain.RequestPhase {
	out := make([]domain.RequestPhase, 0, len(p.Phases))
	for _, ph := range p.Phases {
		ids := make([]string, 0, len(ph.Actions))
		for _, a := range ph.Actions {
			ids = append(ids, a.CharacterID)
		}
		out = append(out, domain.RequestPhase{Priority: ph.Priority, CharacterIDs: ids})
	}
	return out
}

func hasIntent(list []classify.Intent, want classify.Intent) bool {
	for _, i := range list {
		if i == want {
			return true
		}
	}
	return false
}

func isActorName(actors map[string]string, name string) bool {
	for _, n := range actors {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func nameOf(actors map[string]string, id string) string {
	if n, ok := actors[id]; ok && n != "" {
		return n
	}
	return id
}
