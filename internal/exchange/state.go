// Package exchange decides when a scene beat has enough input to resolve
// and breaks complex beats into priority-ordered micro-phases.
package exchange

import (
	"github.com/taleforge/sceneengine/internal/domain"
)

// ComplexThreshold is the action count above which an exchange is complex.
const ComplexThreshold = 3

// NewState returns an empty exchange state for number.
func NewState(number int, nowUnix int64) *domain.ExchangeState {
	return &domain.ExchangeState{
		PlayersActed:   []string{},
		ExchangeNumber: number,
		Complexity:     domain.ComplexitySimple,
		Timestamp:      nowUnix,
	}
}

// Record returns a copy of state with characterID marked as acted and the
// action counter advanced. A nil state starts exchange number.
func Record(state *domain.ExchangeState, number int, characterID string, nowUnix int64) *domain.ExchangeState {
	var next domain.ExchangeState
	if state == nil {
		next = *NewState(number, nowUnix)
	} else {
		next = *state
		next.PlayersActed = append([]string(nil), state.PlayersActed...)
	}
	if !next.HasActed(characterID) {
		next.PlayersActed = append(next.PlayersActed, characterID)
	}
	next.ActionsThisExchange++
	if next.ActionsThisExchange > ComplexThreshold {
		next.Complexity = domain.ComplexityComplex
	}
	next.Timestamp = nowUnix
	return &next
}

// CanResolve reports whether the scene's current exchange may resolve.
// Forced resolution and a scene without exchange state are always ready.
// With participants every listed character must have acted; an open scene
// needs a single action.
func CanResolve(scene *domain.Scene, force bool) bool {
	if force || scene.ExchangeState == nil {
		return true
	}
	st := scene.ExchangeState
	if scene.Participants == nil || len(scene.Participants.CharacterIDs) == 0 {
		return st.ActionsThisExchange >= 1
	}
	for _, id := range scene.Participants.CharacterIDs {
		if !st.HasActed(id) {
			return false
		}
	}
	return true
}

// Missing returns the participants who have not acted in the current exchange.
func Missing(scene *domain.Scene) []string {
	if scene.Participants == nil {
		return nil
	}
	var out []string
	for _, id := range scene.Participants.CharacterIDs {
		if !scene.ExchangeState.HasActed(id) {
			out = append(out, id)
		}
	}
	return out
}

// InitializeExchange completes the scene's current exchange and opens the
// next one with a fresh acted set.
func InitializeExchange(scene *domain.Scene, nowUnix int64) {
	if scene.ExchangeState != nil {
		scene.ExchangeState.IsComplete = true
	}
	scene.CurrentExchangeNumber++
	scene.ExchangeState = NewState(scene.CurrentExchangeNumber, nowUnix)
	scene.WaitingOnUsers = nil
	if scene.Participants != nil {
		scene.WaitingOnUsers = append([]string(nil), scene.Participants.UserIDs...)
	}
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
