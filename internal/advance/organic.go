package advance

import (
	"fmt"
	"sort"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
)

// Heuristics computes organic growth from usage patterns.
type Heuristics struct {
	// StreakUses is how many rolls with a stat make a streak.
	StreakUses int
	// StreakSuccessRate is the minimum success share of a streak.
	StreakSuccessRate float64
	// TagThreshold is how many tagged actions earn the cluster perk.
	TagThreshold int
	Perks        map[classify.Tag]string
}

// DefaultHeuristics returns the standard thresholds and perks.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		StreakUses:        10,
		StreakSuccessRate: 0.6,
		TagThreshold:      5,
		Perks: map[classify.Tag]string{
			classify.TagTraining:      "Disciplined",
			classify.TagCombat:        "Battle-Hardened",
			classify.TagStealth:       "Light-Footed",
			classify.TagInvestigation: "Keen Eye",
		},
	}
}

// Outcome describes what one advancement pass did to a character.
type Outcome struct {
	CharacterID    string
	SuggestedStats map[string]int
	NewPerks       []string
	StatsCommitted bool
	// Rejected is set when pending increases failed ValidateStats.
	Rejected error
	Reasons  []string
}

// Changed reports whether the pass altered the character.
func (o Outcome) Changed() bool {
	return len(o.SuggestedStats) > 0 || len(o.NewPerks) > 0 || o.StatsCommitted
}

// ApplyGrant folds a narrator advancement grant into ch: stat changes join the
// pending increases, perks and moves are appended without duplicates.
func ApplyGrant(ch *domain.Character, g domain.AdvancementGrant) (newPerks, newMoves []string) {
	if len(g.StatChanges) > 0 {
		ch.Advancement.StatIncreases = AccumulateIncreases(ch.Advancement.StatIncreases, g.StatChanges)
	}
	ch.Perks, newPerks = AppendUnique(ch.Perks, g.Perks...)
	ch.Advancement.Perks, _ = AppendUnique(ch.Advancement.Perks, newPerks...)
	ch.Moves, newMoves = AppendUnique(ch.Moves, g.Moves...)
	ch.Advancement.Moves, _ = AppendUnique(ch.Advancement.Moves, newMoves...)
	return newPerks, newMoves
}

// Advance runs one organic advancement pass over ch for the action texts it
// submitted this exchange. Heuristic stat suggestions join the pending
// increases; pending increases are committed to stats only when the
// resulting stat line is valid and are otherwise kept pending.
func (h Heuristics) Advance(ch *domain.Character, actions []string, c classify.Classifier) Outcome {
	out := Outcome{CharacterID: ch.ID}

	if ch.ActionTags == nil {
		ch.ActionTags = make(map[string]int)
	}
	for _, text := range actions {
		for _, tag := range c.Tags(text) {
			ch.ActionTags[string(tag)]++
		}
	}

	suggested := h.streaks(ch)
	for stat := range suggested {
		out.Reasons = append(out.Reasons, fmt.Sprintf("%s streak", stat))
	}
	if len(suggested) > 0 {
		out.SuggestedStats = suggested
		ch.Advancement.StatIncreases = AccumulateIncreases(ch.Advancement.StatIncreases, suggested)
	}

	var perks []string
	for _, tag := range sortedTags(h.Perks) {
		if ch.ActionTags[string(tag)] >= h.TagThreshold {
			perks = append(perks, h.Perks[tag])
		}
	}
	ch.Perks, out.NewPerks = AppendUnique(ch.Perks, perks...)
	ch.Advancement.Perks, _ = AppendUnique(ch.Advancement.Perks, out.NewPerks...)

	if len(ch.Advancement.StatIncreases) > 0 {
		next, err := ApplyStatDeltas(ch.Stats, ch.Advancement.StatIncreases)
		if err != nil {
			out.Rejected = err
		} else {
			ch.Stats = next
			ch.Advancement.StatIncreases = nil
			out.StatsCommitted = true
		}
	}
	return out
}

// streaks returns +1 for every stat on a qualifying streak and resets that
// stat's usage so the streak is counted once.
func (h Heuristics) streaks(ch *domain.Character) map[string]int {
	out := make(map[string]int)
	for stat, u := range ch.StatUsage {
		if u.Uses < h.StreakUses || u.Uses == 0 {
			continue
		}
		if float64(u.Successes)/float64(u.Uses) < h.StreakSuccessRate {
			continue
		}
		out[stat] = 1
		ch.StatUsage[stat] = domain.StatUsage{}
	}
	return out
}

// RecordRoll updates stat usage counters for one roll.
func RecordRoll(ch *domain.Character, stat string, success bool) {
	if ch.StatUsage == nil {
		ch.StatUsage = make(map[string]domain.StatUsage)
	}
	u := ch.StatUsage[stat]
	u.Uses++
	if success {
		u.Successes++
	} else {
		u.Failures++
	}
	ch.StatUsage[stat] = u
}

func sortedTags(m map[classify.Tag]string) []classify.Tag {
	out := make([]classify.Tag, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
