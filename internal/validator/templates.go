package validator

import "github.com/taleforge/sceneengine/internal/classify"

const unavailableNote = "(The narrator was briefly unavailable, so this exchange " +
	"is summarised rather than narrated. Your actions count and play continues from here.)"

// DefaultTemplates are the placeholder narratives used when the narrator
// produced nothing usable. Each one tells the table the exchange was summarised
// while the narrator was unavailable and is long enough to pass downstream length checks.
func DefaultTemplates() map[classify.Mood]string {
	return map[classify.Mood]string{
		classify.MoodCombat: "The clash hangs in a held breath: blades half-raised, footing shifting, " +
			"every combatant waiting for an opening that has not yet come. " +
			unavailableNote,
		classify.MoodSocial: "Words hang in the air and the room waits on a reply. Glances are traded, " +
			"a cup is set down, and nobody is quite ready to speak first. " +
			unavailableNote,
		classify.MoodExploration: "The path ahead keeps its secrets a little longer. Wind moves through " +
			"the unknown terrain while the party gathers itself for the next step. " +
			unavailableNote,
		classify.MoodDefault: "The moment stretches as the world seems to pause around you, " +
			"the consequences of your choices still settling into place. " +
			unavailableNote,
	}
}
