package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
)

func act(char, text string) domain.PlayerAction {
	return domain.PlayerAction{ID: "act-" + char, CharacterID: char, ActionText: text}
}

func TestDecompose_PhaseOrder(t *testing.T) {
	d := &ConflictDetector{Classifier: classify.Default()}
	actions := []domain.PlayerAction{
		act("c", "I persuade the captain"),
		act("a", "I climb the wall"),
		act("b", "I attack the sentry"),
		act("d", "I hum a tune"),
	}
	plan := d.Decompose(actions, nil, map[string]string{"a": "Ash", "b": "Bryn", "c": "Cato", "d": "Dell"})

	require.Len(t, plan.Phases, 4)
	var order []domain.ActionPriority
	for _, ph := range plan.Phases {
		order = append(order, ph.Priority)
	}
	assert.Equal(t, domain.PriorityOrder, order)
	assert.Equal(t, "b", plan.Phases[0].Actions[0].CharacterID)
	assert.Contains(t, plan.Guidance, "(1) COMBAT: Bryn.")

	phases := plan.RequestPhases()
	assert.Equal(t, []string{"a"}, phases[1].CharacterIDs)
}

func TestDetect_HostileParley(t *testing.T) {
	d := &ConflictDetector{Classifier: classify.Default()}
	entities := []Entity{{ID: "npc-1", Name: "Warden"}}
	actors := map[string]string{"a": "Ash", "b": "Bryn"}
	actions := []domain.PlayerAction{
		act("a", "I attack the Warden"),
		act("b", "I negotiate with the Warden"),
	}

	conflicts := d.Detect(actions, entities, actors)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictHostileParley, conflicts[0].Type)
	assert.Equal(t, "Warden", conflicts[0].Target)

	plan := d.Decompose(actions, entities, actors)
	assert.Contains(t, plan.Guidance, "Ash and Bryn pull Warden in opposite directions")
}

func TestDetect_PvP(t *testing.T) {
	d := &ConflictDetector{Classifier: classify.Default()}
	actors := map[string]string{"a": "Ash", "b": "Bryn"}
	conflicts := d.Detect([]domain.PlayerAction{act("a", "I stab Bryn"), act("b", "I pray")}, nil, actors)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictPvP, conflicts[0].Type)
}

func TestDetectBetween_SameCharacterOrAligned(t *testing.T) {
	d := &ConflictDetector{Classifier: classify.Default()}
	assert.Nil(t, d.DetectBetween("Warden", act("a", "I attack"), act("a", "I negotiate")))
	assert.Nil(t, d.DetectBetween("Warden", act("a", "I attack"), act("b", "I strike")))
}

func TestDecompose_Empty(t *testing.T) {
	d := &ConflictDetector{Classifier: classify.Default()}
	plan := d.Decompose(nil, nil, nil)
	assert.Empty(t, plan.Phases)
	assert.Empty(t, plan.Guidance)
}
