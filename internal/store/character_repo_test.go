package store

import (
	"context"
	"errors"
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
)

func TestCharacterRepo_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &CharacterRepo{}

	c := domain.Character{
		ID: "ch-1", CampaignID: "camp-1", Name: "Mira", Harm: 2,
		Conditions:    []domain.Condition{{Name: "Shaken", Category: domain.ConditionMental}},
		Stats:         map[string]int{"might": 1, "grace": 1, "wits": 0, "heart": 0},
		Relationships: map[string]domain.Relationship{"npc-1": {Trust: 10}},
		Inventory:     domain.Inventory{Items: []domain.Item{{Name: "Rope", Quantity: 1}}, Slots: 8},
		Resources:     domain.Resources{Gold: 12, Reputation: map[string]int{"guild": 2}},
	}
	tx, _ := db.Begin()
	if err := repo.CreateTx(ctx, tx, c); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	tx.Commit()

	got, err := repo.GetByID(ctx, db, "ch-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Harm != 2 || got.Conditions[0].Name != "Shaken" || got.Stats["might"] != 1 {
		t.Errorf("got = %+v", got)
	}
	if got.Relationships["npc-1"].Trust != 10 || got.Inventory.Slots != 8 || got.Resources.Reputation["guild"] != 2 {
		t.Errorf("nested fields not preserved: %+v", got)
	}

	got.Harm = 5
	got.Location = "Harbour"
	tx, _ = db.Begin()
	if err := repo.UpdateTx(ctx, tx, *got); err != nil {
		t.Fatalf("UpdateTx: %v", err)
	}
	tx.Commit()

	list, _ := repo.ListByCampaign(ctx, db, "camp-1")
	if len(list) != 1 || list[0].Harm != 5 || list[0].Location != "Harbour" {
		t.Errorf("list = %+v", list)
	}

	tx, _ = db.Begin()
	defer tx.Rollback()
	if err := repo.UpdateTx(ctx, tx, domain.Character{ID: "missing"}); !errors.Is(err, domain.ErrCharacterNotFound) {
		t.Errorf("err = %v, want ErrCharacterNotFound", err)
	}
}

func TestWorldRepos_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tx, _ := db.Begin()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must((&WorldRepo{}).CreateTx(ctx, tx, domain.WorldMeta{CampaignID: "c", Universe: "Ashfall", InGameDate: "Day 1"}))
	must((&FactionRepo{}).CreateTx(ctx, tx, domain.Faction{ID: "f1", CampaignID: "c", Name: "Guild", ThreatLevel: domain.ThreatLow}))
	must((&NPCRepo{}).CreateTx(ctx, tx, domain.NPC{ID: "n1", CampaignID: "c", Name: "Oren", Tags: []string{"ally"}}))
	must((&ClockRepo{}).CreateTx(ctx, tx, domain.Clock{ID: "k1", CampaignID: "c", Name: "Storm", Max: 6, Visibility: domain.VisibilityPublic}))
	for i := 0; i < 4; i++ {
		must((&TimelineRepo{}).CreateTx(ctx, tx, domain.TimelineEvent{
			ID: string(rune('a' + i)), CampaignID: "c", Title: "event", Visibility: domain.VisibilityPublic, CreatedAtUnix: int64(i),
		}))
	}
	must(tx.Commit())

	meta, err := (&WorldRepo{}).Get(ctx, db, "c")
	must(err)
	meta.TurnNumber = 3
	meta.GMNotes = []string{"watch the storm"}
	tx, _ = db.Begin()
	must((&WorldRepo{}).UpdateTx(ctx, tx, *meta))
	must(tx.Commit())

	meta, _ = (&WorldRepo{}).Get(ctx, db, "c")
	if meta.TurnNumber != 3 || len(meta.GMNotes) != 1 {
		t.Errorf("meta = %+v", meta)
	}

	factions, _ := (&FactionRepo{}).ListByCampaign(ctx, db, "c")
	if len(factions) != 1 || factions[0].ResourcesJSON != "{}" {
		t.Errorf("factions = %+v", factions)
	}
	npcs, _ := (&NPCRepo{}).ListByCampaign(ctx, db, "c")
	if len(npcs) != 1 || npcs[0].Tags[0] != "ally" {
		t.Errorf("npcs = %+v", npcs)
	}
	recent, _ := (&TimelineRepo{}).ListRecent(ctx, db, "c", 2)
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "d" {
		t.Errorf("recent = %+v", recent)
	}

	if _, err := (&WorldRepo{}).Get(ctx, db, "missing"); !errors.Is(err, domain.ErrCampaignNotFound) {
		t.Errorf("err = %v, want ErrCampaignNotFound", err)
	}
}
