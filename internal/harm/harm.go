// Package harm implements the bounded harm track and condition set.
package harm

import (
	"strings"

	"github.com/taleforge/sceneengine/internal/domain"
)

const (
	// Min is an unharmed character.
	Min = 0
	// Max incapacitates a character.
	Max = 6
	// ImpairedAt is the first harm value that imposes a roll penalty.
	ImpairedAt = 4
)

// Status is the qualitative reading of a harm value.
type Status string

const (
	StatusHealthy       Status = "healthy"
	StatusImpaired      Status = "impaired"
	StatusIncapacitated Status = "incapacitated"
)

// Clamp bounds h to the harm track.
func Clamp(h int) int {
	if h < Min {
		return Min
	}
	if h > Max {
		return Max
	}
	return h
}

// ApplyDamage adds n harm, ignoring negative input.
func ApplyDamage(current, n int) int {
	if n < 0 {
		n = 0
	}
	return Clamp(current + n)
}

// Heal removes n harm, ignoring negative input.
func Heal(current, n int) int {
	if n < 0 {
		n = 0
	}
	return Clamp(current - n)
}

// StatusOf classifies a harm value.
func StatusOf(h int) Status {
	h = Clamp(h)
	switch {
	case h >= Max:
		return StatusIncapacitated
	case h >= ImpairedAt:
		return StatusImpaired
	default:
		return StatusHealthy
	}
}

// RollPenalty is the modifier applied to rolls at harm h.
// Incapacitated characters cannot roll, which callers check via StatusOf.
func RollPenalty(h int) int {
	if StatusOf(h) == StatusHealthy {
		return 0
	}
	return -1
}

// HasCondition reports whether name is present, case-insensitively.
func HasCondition(set []domain.Condition, name string) bool {
	return indexOf(set, name) >= 0
}

// AddCondition returns set with c appended unless an equally named condition exists.
func AddCondition(set []domain.Condition, c domain.Condition) []domain.Condition {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || HasCondition(set, c.Name) {
		return set
	}
	if c.Category == "" {
		c.Category = domain.ConditionPhysical
	}
	out := make([]domain.Condition, 0, len(set)+1)
	out = append(out, set...)
	return append(out, c)
}

// RemoveCondition returns set without the named condition.
func RemoveCondition(set []domain.Condition, name string) []domain.Condition {
	i := indexOf(set, name)
	if i < 0 {
		return set
	}
	out := make([]domain.Condition, 0, len(set)-1)
	out = append(out, set[:i]...)
	return append(out, set[i+1:]...)
}

// ValidCategory reports whether c is a known condition category.
func ValidCategory(c domain.ConditionCategory) bool {
	switch c {
	case domain.ConditionPhysical, domain.ConditionMental, domain.ConditionSocial, domain.ConditionSupernatural:
		return true
	}
	return false
}

func indexOf(set []domain.Condition, name string) int {
	name = strings.TrimSpace(name)
	for i, c := range set {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
