package world

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/store"
)

const campaign = "camp-1"

func seed(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, (&store.WorldRepo{}).CreateTx(ctx, tx, domain.WorldMeta{
		CampaignID: campaign, Universe: "Ashfall", TurnNumber: 3, InGameDate: "Day 4",
	}))
	require.NoError(t, (&store.CharacterRepo{}).CreateTx(ctx, tx, domain.Character{
		ID: "pc-ash", CampaignID: campaign, Name: "Ash Varga", Harm: 1,
		Stats:     map[string]int{"blood": 1, "heart": 1, "mind": 0, "spirit": 0},
		Inventory: domain.Inventory{Items: []domain.Item{{Name: "Rope", Quantity: 1}}, Slots: 2},
		Resources: domain.Resources{Gold: 1000},
	}))
	require.NoError(t, (&store.CharacterRepo{}).CreateTx(ctx, tx, domain.Character{
		ID: "pc-bryn", CampaignID: campaign, Name: "Bryn", Stats: map[string]int{"blood": 2},
	}))
	require.NoError(t, (&store.NPCRepo{}).CreateTx(ctx, tx, domain.NPC{
		ID: "npc-1", CampaignID: campaign, Name: "Warden Hale", Tags: []string{"loyal"},
	}))
	require.NoError(t, (&store.FactionRepo{}).CreateTx(ctx, tx, domain.Faction{
		ID: "fac-1", CampaignID: campaign, Name: "The Iron Court", ThreatLevel: domain.ThreatLow,
		ResourcesJSON: `{"soldiers":40}`,
	}))
	require.NoError(t, (&store.ClockRepo{}).CreateTx(ctx, tx, domain.Clock{
		ID: "clk-1", CampaignID: campaign, Name: "Siege", Value: 4, Max: 6, Visibility: domain.VisibilityPublic,
	}))
	require.NoError(t, tx.Commit())
	return db
}

func apply(t *testing.T, db *sql.DB, u *Updater, upd domain.WorldUpdates) *Result {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	res, err := u.ApplyTx(context.Background(), tx, campaign, "scene-1", upd)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return res
}

func TestApplyTx_ClocksClampAndLookup(t *testing.T) {
	db := seed(t)
	u := NewUpdater(nil)

	res := apply(t, db, u, domain.WorldUpdates{ClockChanges: []domain.ClockChange{
		{ClockName: "siege", Delta: 5, Reason: "walls breached"},
		{ClockName: "Harvest", Delta: 1},
	}})

	require.Len(t, res.ClockTicks, 1)
	tick := res.ClockTicks[0]
	assert.Equal(t, 4, tick.From)
	assert.Equal(t, 6, tick.To)
	assert.True(t, tick.Filled())
	assert.Equal(t, []string{"clock:Harvest"}, res.Skipped)

	clocks, err := u.Clocks.ListByCampaign(context.Background(), db, campaign)
	require.NoError(t, err)
	assert.Equal(t, 6, clocks[0].Value)

	res = apply(t, db, u, domain.WorldUpdates{ClockChanges: []domain.ClockChange{{ClockID: "clk-1", Delta: -10}}})
	assert.Equal(t, 0, res.ClockTicks[0].To)
}

func TestApplyTx_CharacterChanges(t *testing.T) {
	db := seed(t)
	u := NewUpdater(nil)

	apply(t, db, u, domain.WorldUpdates{PCChanges: []domain.PCChange{{
		CharacterName: "ash",
		HarmDamage:    4,
		AddConditions: []domain.Condition{
			{Name: "Shaken", Category: domain.ConditionMental},
			{Name: "Odd", Category: "cosmic"},
		},
		NewLocation:         "The Gatehouse",
		RelationshipChanges: []domain.RelationshipChange{{EntityID: "npc-1", Trust: 80}, {EntityID: "npc-1", Trust: 80, Fear: -5}},
		ConsequenceChanges: []domain.ConsequenceChange{
			{Type: domain.ConsequenceDebt, Action: domain.OpAdd, Text: "Owes Hale a favor"},
			{Type: domain.ConsequenceDebt, Action: domain.OpAdd, Text: "owes hale a favor"},
		},
		AppearanceChange: &domain.TextChange{Mode: domain.OpAppend, Text: "A fresh scar."},
		EquipmentChanges: []domain.EquipmentChange{{Slot: "hand", Action: domain.OpAdd, Item: "Spear"}},
		InventoryChanges: []domain.InventoryChange{
			{Action: domain.OpAdd, Item: "Torch", Quantity: 2},
			{Action: domain.OpAdd, Item: "Lantern"},
			{Action: domain.OpAdd, Item: "rope"},
		},
		ResourceChanges: &domain.ResourceChange{GoldDelta: -1500, AddContacts: []string{"Hale"}, ReputationDeltas: map[string]int{"court": 2}},
		StatRolls:       []domain.StatRoll{{Stat: "blood", Success: true}, {Stat: "blood", Success: false}},
	}}})

	c, err := u.Characters.GetByID(context.Background(), db, "pc-ash")
	require.NoError(t, err)
	assert.Equal(t, 5, c.Harm)
	require.Len(t, c.Conditions, 1)
	assert.Equal(t, "Shaken", c.Conditions[0].Name)
	assert.Equal(t, "The Gatehouse", c.Location)
	assert.Equal(t, 100, c.Relationships["npc-1"].Trust)
	assert.Equal(t, -5, c.Relationships["npc-1"].Fear)
	assert.Equal(t, []string{"Owes Hale a favor"}, c.Consequences.Debts)
	assert.Equal(t, "A fresh scar.", c.Appearance)
	assert.Equal(t, "Spear", c.Equipment["hand"])
	// Two slots: Rope plus Torch; the Lantern does not fit.
	assert.Equal(t, []domain.Item{{Name: "Rope", Quantity: 2}, {Name: "Torch", Quantity: 2}}, c.Inventory.Items)
	assert.Equal(t, 0, c.Resources.Gold)
	assert.Equal(t, []string{"Hale"}, c.Resources.Contacts)
	assert.Equal(t, 2, c.Resources.Reputation["court"])
	assert.Equal(t, domain.StatUsage{Uses: 2, Successes: 1, Failures: 1}, c.StatUsage["blood"])
}

func TestApplyTx_HealAndRemove(t *testing.T) {
	db := seed(t)
	u := NewUpdater(nil)
	apply(t, db, u, domain.WorldUpdates{PCChanges: []domain.PCChange{{
		CharacterID: "pc-ash", HarmHealed: 6,
		InventoryChanges:  []domain.InventoryChange{{Action: domain.OpRemove, Item: "ROPE"}},
		PersonalityChange: &domain.TextChange{Mode: domain.OpReplace, Text: "Calm"},
	}}})
	c, err := u.Characters.GetByID(context.Background(), db, "pc-ash")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Harm)
	assert.Empty(t, c.Inventory.Items)
	assert.Equal(t, "Calm", c.Personality)
}

func TestApplyTx_NPCsFactionsTimelineNotes(t *testing.T) {
	db := seed(t)
	u := NewUpdater(nil)
	u.MaxGMNotes = 2
	ctx := context.Background()

	res := apply(t, db, u, domain.WorldUpdates{
		NewTimelineEvents: []domain.TimelineEventChange{{Title: "The gate falls"}},
		NPCChanges: []domain.NPCChange{{
			NPCName: "hale", NotesAppend: "Suspects Ash.", AddTags: []string{"wary"}, RemoveTags: []string{"LOYAL"},
		}},
		FactionChanges: []domain.FactionChange{{
			FactionName: "iron court", NewPlan: "Retake the gate", ThreatLevel: domain.ThreatHigh,
			Resources: map[string]any{"gold": 12}, GMNotesAppend: "Watch them.",
		}, {FactionName: "Nobody"}},
		NotesForGM: "first",
	})
	require.Len(t, res.TimelineEvents, 1)
	assert.Equal(t, 3, res.TimelineEvents[0].TurnNumber)
	assert.Equal(t, domain.VisibilityPublic, res.TimelineEvents[0].Visibility)
	assert.Contains(t, res.Skipped, "faction:Nobody")

	npcs, err := u.NPCs.ListByCampaign(ctx, db, campaign)
	require.NoError(t, err)
	assert.Equal(t, "Suspects Ash.", npcs[0].Notes)
	assert.Equal(t, []string{"wary"}, npcs[0].Tags)

	factions, err := u.Factions.ListByCampaign(ctx, db, campaign)
	require.NoError(t, err)
	assert.Equal(t, domain.ThreatHigh, factions[0].ThreatLevel)
	assert.Equal(t, "Retake the gate", factions[0].Plan)
	assert.JSONEq(t, `{"soldiers":40,"gold":12}`, factions[0].ResourcesJSON)

	apply(t, db, u, domain.WorldUpdates{NotesForGM: "second"})
	apply(t, db, u, domain.WorldUpdates{NotesForGM: "third"})
	meta, err := u.World.Get(ctx, db, campaign)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "third"}, meta.GMNotes)

	events, err := u.Timeline.ListRecent(ctx, db, campaign, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "The gate falls", events[0].Title)
}

func TestApplyTx_OrganicAdvancement(t *testing.T) {
	db := seed(t)
	u := NewUpdater(nil)
	res := apply(t, db, u, domain.WorldUpdates{OrganicAdvancement: []domain.AdvancementGrant{
		{CharacterName: "Bryn", Perks: []string{"Stubborn", "Stubborn"}, Moves: []string{"Shield Wall"}, StatChanges: map[string]int{"heart": 1}},
		{CharacterName: "Ghost", Perks: []string{"Nothing"}},
	}})
	require.Len(t, res.Grants, 1)
	assert.Equal(t, []string{"Stubborn"}, res.Grants[0].Perks)
	assert.True(t, res.Grants[0].Stats)

	c, err := u.Characters.GetByID(context.Background(), db, "pc-bryn")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stubborn"}, c.Perks)
	assert.Equal(t, []string{"Shield Wall"}, c.Moves)
	assert.Equal(t, 1, c.Advancement.StatIncreases["heart"])
	assert.Equal(t, 2, c.Stats["blood"], "grants stay pending until validated")
}

func TestApplyTx_MissingCampaign(t *testing.T) {
	db := seed(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = NewUpdater(nil).ApplyTx(context.Background(), tx, "nope", "s", domain.WorldUpdates{})
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}
