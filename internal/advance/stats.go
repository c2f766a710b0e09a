// Package advance holds the stat validity rule and the organic advancement
// heuristics that turn usage patterns into character growth.
package advance

import (
	"fmt"
	"sort"

	"github.com/taleforge/sceneengine/internal/domain"
)

// Stat bounds.
const (
	StatSum     = 2
	StatMin     = -2
	StatMax     = 3
	HighStat    = 2
	MaxHighStat = 1
	// MaxPendingIncrease caps an accumulated advancement per stat.
	MaxPendingIncrease = 3
)

// ValidateStats checks a complete stat line.
func ValidateStats(stats map[string]int) error {
	sum, high := 0, 0
	for _, name := range sortedKeys(stats) {
		v := stats[name]
		if v < StatMin || v > StatMax {
			return domain.NewEngineError(domain.ErrStatRange, fmt.Sprintf("stat %s = %d outside [%d, %d]", name, v, StatMin, StatMax))
		}
		if v >= HighStat {
			high++
		}
		sum += v
	}
	if sum != StatSum {
		return domain.NewEngineError(domain.ErrStatSum, fmt.Sprintf("stats sum to %d, want %d", sum, StatSum))
	}
	if high > MaxHighStat {
		return domain.NewEngineError(domain.ErrStatHighCount, fmt.Sprintf("%d stats at +%d or higher", high, HighStat))
	}
	return nil
}

// ApplyStatDeltas returns stats with deltas applied, or an error and nil when
// the result would be invalid. stats is never modified.
func ApplyStatDeltas(stats, deltas map[string]int) (map[string]int, error) {
	out := make(map[string]int, len(stats)+len(deltas))
	for k, v := range stats {
		out[k] = v
	}
	for k, d := range deltas {
		out[k] += d
	}
	if err := ValidateStats(out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccumulateIncreases adds deltas to the pending increases, capping each stat
// at MaxPendingIncrease. It returns the updated map.
func AccumulateIncreases(pending, deltas map[string]int) map[string]int {
	if pending == nil {
		pending = make(map[string]int)
	}
	for k, d := range deltas {
		v := pending[k] + d
		if v > MaxPendingIncrease {
			v = MaxPendingIncrease
		}
		pending[k] = v
	}
	return pending
}

// AppendUnique appends values not already present, keeping order.
func AppendUnique(list []string, values ...string) ([]string, []string) {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	var added []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		list = append(list, v)
		added = append(added, v)
	}
	return list, added
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
