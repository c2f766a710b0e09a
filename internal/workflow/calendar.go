package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/taleforge/sceneengine/internal/domain"
)

var dayPattern = regexp.MustCompile(`^(?i)day\s+(\d+)(?:\s*,\s*(\d{1,2}):(\d{2}))?$`)

// AdvanceDate moves an in-game date by tp. An explicit new date wins. Dates
// of the form "Day N" or "Day N, HH:MM" advance arithmetically; anything
// else gets the passage appended as text.
func AdvanceDate(current string, tp *domain.TimePassage) string {
	if tp == nil {
		return current
	}
	if d := strings.TrimSpace(tp.NewDate); d != "" {
		return d
	}
	if tp.Days <= 0 && tp.Hours <= 0 {
		return current
	}

	cur := strings.TrimSpace(current)
	if cur == "" {
		cur = "Day 1"
	}
	m := dayPattern.FindStringSubmatch(cur)
	if m == nil {
		return fmt.Sprintf("%s (+%s)", cur, passageText(tp.Days, tp.Hours))
	}

	day, _ := strconv.Atoi(m[1])
	hasTime := m[2] != ""
	hour, minute := 0, 0
	if hasTime {
		hour, _ = strconv.Atoi(m[2])
		minute, _ = strconv.Atoi(m[3])
	}

	day += max(0, tp.Days)
	if tp.Hours > 0 {
		hasTime = true
		hour += tp.Hours
		day += hour / 24
		hour %= 24
	}
	if !hasTime {
		return fmt.Sprintf("Day %d", day)
	}
	return fmt.Sprintf("Day %d, %02d:%02d", day, hour, minute)
}

func passageText(days, hours int) string {
	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
