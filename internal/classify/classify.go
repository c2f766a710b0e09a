// Package classify holds the keyword heuristics used to sort free-text
// actions and scene descriptions. Every function is pure and stateless.
package classify

import (
	"sort"
	"strings"
	"unicode"

	"github.com/taleforge/sceneengine/internal/domain"
)

// Intent is a coarse action tag used in cache signatures.
type Intent string

const (
	IntentCombat      Intent = "combat"
	IntentSocial      Intent = "social"
	IntentInvestigate Intent = "investigate"
	IntentMovement    Intent = "movement"
	IntentAbility     Intent = "ability"
	IntentOther       Intent = "other"
)

// Mood selects an emergency narrative template for a scene.
type Mood string

const (
	MoodCombat      Mood = "combat"
	MoodSocial      Mood = "social"
	MoodExploration Mood = "exploration"
	MoodDefault     Mood = "default"
)

// Tag is an action cluster counted toward organic perks.
type Tag string

const (
	TagTraining      Tag = "training"
	TagCombat        Tag = "combat"
	TagStealth       Tag = "stealth"
	TagInvestigation Tag = "investigation"
)

// Classifier turns free text into the engine's coarse categories.
type Classifier interface {
	Priority(text string) domain.ActionPriority
	Intents(text string) []Intent
	Mood(intro string) Mood
	Tags(text string) []Tag
}

// Keywords is the default keyword-table Classifier.
type Keywords struct {
	Priorities  map[domain.ActionPriority][]string
	IntentWords map[Intent][]string
	MoodWords   map[Mood][]string
	TagWords    map[Tag][]string
}

// Default returns the built-in keyword tables.
func Default() *Keywords {
	return &Keywords{
		Priorities: map[domain.ActionPriority][]string{
			domain.PriorityCombat:   {"attack", "strike", "shoot", "stab", "fight", "slash", "punch", "kill", "swing", "fire at", "charge", "parry", "block", "grapple"},
			domain.PriorityMovement: {"run", "move", "climb", "jump", "flee", "sneak", "walk", "dash", "hide", "retreat", "travel", "ride", "swim", "enter", "leave"},
			domain.PrioritySocial:   {"talk", "persuade", "negotiate", "convince", "ask", "lie", "bribe", "charm", "threaten", "intimidate", "greet", "plead", "bargain", "deceive"},
		},
		IntentWords: map[Intent][]string{
			IntentCombat:      {"attack", "strike", "shoot", "stab", "fight", "slash", "punch", "kill", "swing", "parry", "grapple"},
			IntentSocial:      {"talk", "persuade", "negotiate", "convince", "ask", "lie", "bribe", "charm", "threaten", "intimidate", "plead", "bargain"},
			IntentInvestigate: {"search", "investigate", "examine", "inspect", "look", "study", "read", "analyze", "track", "listen"},
			IntentMovement:    {"run", "move", "climb", "jump", "flee", "sneak", "walk", "dash", "retreat", "travel", "ride", "swim"},
			IntentAbility:     {"cast", "spell", "summon", "channel", "invoke", "ritual", "power", "ability", "enchant", "heal"},
		},
		MoodWords: map[Mood][]string{
			MoodCombat:      {"battle", "fight", "ambush", "attack", "blade", "war", "siege", "blood", "enemy", "combat", "skirmish"},
			MoodSocial:      {"court", "feast", "negotiation", "meeting", "council", "tavern", "party", "audience", "parley", "banquet"},
			MoodExploration: {"ruin", "cave", "forest", "explore", "journey", "road", "wilderness", "dungeon", "path", "ancient", "map"},
		},
		TagWords: map[Tag][]string{
			TagTraining:      {"train", "practice", "drill", "spar", "exercise", "meditate", "study"},
			TagCombat:        {"attack", "strike", "fight", "stab", "slash", "shoot", "parry", "kill"},
			TagStealth:       {"sneak", "hide", "stealth", "shadow", "creep", "pickpocket", "disguise"},
			TagInvestigation: {"search", "investigate", "examine", "inspect", "deduce", "track", "clue"},
		},
	}
}

// Priority scores every priority class and returns the unique winner.
// Ties, including no match at all, fall to OTHER.
func (k *Keywords) Priority(text string) domain.ActionPriority {
	words := Words(text)
	best, bestScore, tie := domain.PriorityOther, 0, false
	for _, p := range []domain.ActionPriority{domain.PriorityCombat, domain.PriorityMovement, domain.PrioritySocial} {
		score := countMatches(words, text, k.Priorities[p])
		switch {
		case score > bestScore:
			best, bestScore, tie = p, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return domain.PriorityOther
	}
	return best
}

// Intents returns the sorted set of intent tags present in text.
// Text with no recognised intent yields [other].
func (k *Keywords) Intents(text string) []Intent {
	words := Words(text)
	var out []Intent
	for intent, kws := range k.IntentWords {
		if countMatches(words, text, kws) > 0 {
			out = append(out, intent)
		}
	}
	if len(out) == 0 {
		return []Intent{IntentOther}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Mood picks the dominant mood of a scene introduction.
func (k *Keywords) Mood(intro string) Mood {
	words := Words(intro)
	best, bestScore := MoodDefault, 0
	for _, m := range []Mood{MoodCombat, MoodSocial, MoodExploration} {
		if score := countMatches(words, intro, k.MoodWords[m]); score > bestScore {
			best, bestScore = m, score
		}
	}
	return best
}

// Tags returns the sorted cluster tags present in text.
func (k *Keywords) Tags(text string) []Tag {
	words := Words(text)
	var out []Tag
	for tag, kws := range k.TagWords {
		if countMatches(words, text, kws) > 0 {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Targets returns the candidate names mentioned in text, in candidate order.
func Targets(text string, candidates []string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, name := range candidates {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if strings.Contains(lower, n) {
			out = append(out, name)
		}
	}
	return out
}

// Words lower-cases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countMatches counts keywords found as word stems; multi-word keywords
// are matched as substrings of the lower-cased text.
func countMatches(words []string, text string, keywords []string) int {
	lower := ""
	n := 0
	for _, kw := range keywords {
		if strings.Contains(kw, " ") {
			if lower == "" {
				lower = strings.ToLower(text)
			}
			if strings.Contains(lower, kw) {
				n++
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				n++
				break
			}
		}
	}
	return n
}
