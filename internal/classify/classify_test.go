package classify

import (
	"reflect"
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
)

func TestKeywords_Priority(t *testing.T) {
	k := Default()
	tests := []struct {
		text string
		want domain.ActionPriority
	}{
		{"I attack the guard with my sword", domain.PriorityCombat},
		{"Kira climbs the wall and runs to the gate", domain.PriorityMovement},
		{"I try to persuade the merchant", domain.PrioritySocial},
		{"I hum a quiet tune", domain.PriorityOther},
		{"I attack while I climb", domain.PriorityOther},
		{"", domain.PriorityOther},
	}
	for _, tt := range tests {
		if got := k.Priority(tt.text); got != tt.want {
			t.Errorf("Priority(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestKeywords_Intents(t *testing.T) {
	k := Default()
	got := k.Intents("I search the room, then cast a ward")
	want := []Intent{IntentAbility, IntentInvestigate}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Intents = %v, want %v", got, want)
	}
	if got := k.Intents("nothing at all"); !reflect.DeepEqual(got, []Intent{IntentOther}) {
		t.Errorf("Intents(no match) = %v, want [other]", got)
	}
}

func TestKeywords_Mood(t *testing.T) {
	k := Default()
	tests := []struct {
		intro string
		want  Mood
	}{
		{"Steel rings out as the ambush begins and blood hits the snow.", MoodCombat},
		{"The council gathers in the long hall for the feast.", MoodSocial},
		{"An ancient ruin rises out of the forest.", MoodExploration},
		{"Rain.", MoodDefault},
	}
	for _, tt := range tests {
		if got := k.Mood(tt.intro); got != tt.want {
			t.Errorf("Mood(%q) = %q, want %q", tt.intro, got, tt.want)
		}
	}
}

func TestKeywords_Tags(t *testing.T) {
	k := Default()
	got := k.Tags("I sneak behind the crates and search for clues")
	want := []Tag{TagInvestigation, TagStealth}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}
}

func TestTargets(t *testing.T) {
	got := Targets("I draw steel on Lord Varn while eyeing the Ash Guild", []string{"Ash Guild", "Lord Varn", "Mira", ""})
	want := []string{"Ash Guild", "Lord Varn"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Targets = %v, want %v", got, want)
	}
}

func TestWords(t *testing.T) {
	got := Words("Hello, World! it's 3pm")
	want := []string{"hello", "world", "it", "s", "3pm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}
