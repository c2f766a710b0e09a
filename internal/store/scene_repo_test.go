package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
)

func createScene(t *testing.T, db *sql.DB, s domain.Scene) {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := (&SceneRepo{}).CreateTx(context.Background(), tx, s); err != nil {
		t.Fatalf("CreateTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSceneRepo_CreateGetUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SceneRepo{}

	createScene(t, db, domain.Scene{
		ID: "scene-1", CampaignID: "camp-1", SceneNumber: 1, Status: domain.SceneAwaitingActions,
		IntroText: "intro", Participants: &domain.Participants{CharacterIDs: []string{"a", "b"}},
		CurrentExchangeNumber: 1, Revision: 1,
	})

	s, err := repo.GetByID(ctx, db, "scene-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if s.Participants == nil || len(s.Participants.CharacterIDs) != 2 {
		t.Fatalf("participants = %+v", s.Participants)
	}
	if s.ExchangeState != nil {
		t.Errorf("exchange state should start nil, got %+v", s.ExchangeState)
	}

	s.Status = domain.SceneResolving
	s.ExchangeState = &domain.ExchangeState{PlayersActed: []string{"a"}, ExchangeNumber: 1, ActionsThisExchange: 1}
	tx, _ := db.Begin()
	if err := repo.UpdateTx(ctx, tx, s); err != nil {
		t.Fatalf("UpdateTx: %v", err)
	}
	tx.Commit()
	if s.Revision != 2 {
		t.Errorf("Revision = %d, want 2", s.Revision)
	}

	got, _ := repo.GetByID(ctx, db, "scene-1")
	if got.Status != domain.SceneResolving || !got.ExchangeState.HasActed("a") {
		t.Errorf("stored scene = %+v", got)
	}
}

func TestSceneRepo_OptimisticLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SceneRepo{}
	createScene(t, db, domain.Scene{ID: "s", CampaignID: "c", Status: domain.SceneAwaitingActions, Revision: 1})

	stale, _ := repo.GetByID(ctx, db, "s")
	fresh, _ := repo.GetByID(ctx, db, "s")

	tx, _ := db.Begin()
	if err := repo.UpdateTx(ctx, tx, fresh); err != nil {
		t.Fatalf("first update: %v", err)
	}
	tx.Commit()

	tx, _ = db.Begin()
	defer tx.Rollback()
	err := repo.UpdateTx(ctx, tx, stale)
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Fatalf("err = %v, want ErrOptimisticLock", err)
	}
}

func TestSceneRepo_OneActiveScenePerCampaign(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SceneRepo{}
	createScene(t, db, domain.Scene{ID: "s1", CampaignID: "c", SceneNumber: 1, Status: domain.SceneAwaitingActions, Revision: 1})

	tx, _ := db.Begin()
	err := repo.CreateTx(ctx, tx, domain.Scene{ID: "s2", CampaignID: "c", SceneNumber: 2, Status: domain.SceneAwaitingActions, Revision: 1})
	tx.Rollback()
	if !errors.Is(err, domain.ErrActiveSceneExists) {
		t.Fatalf("err = %v, want ErrActiveSceneExists", err)
	}

	// A resolved scene frees the slot.
	s1, _ := repo.GetByID(ctx, db, "s1")
	s1.Status = domain.SceneResolved
	tx, _ = db.Begin()
	if err := repo.UpdateTx(ctx, tx, s1); err != nil {
		t.Fatalf("resolve s1: %v", err)
	}
	tx.Commit()
	createScene(t, db, domain.Scene{ID: "s2", CampaignID: "c", SceneNumber: 2, Status: domain.SceneAwaitingActions, Revision: 1})

	active, err := repo.GetActive(ctx, db, "c")
	if err != nil || active == nil || active.ID != "s2" {
		t.Fatalf("GetActive = %+v, %v", active, err)
	}
	n, _ := repo.NextSceneNumber(ctx, db, "c")
	if n != 3 {
		t.Errorf("NextSceneNumber = %d, want 3", n)
	}
}

func TestSceneRepo_ListStuck(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SceneRepo{}
	createScene(t, db, domain.Scene{ID: "old", CampaignID: "c1", Status: domain.SceneResolving, Revision: 1, UpdatedAtUnix: 100})
	createScene(t, db, domain.Scene{ID: "new", CampaignID: "c2", Status: domain.SceneResolving, Revision: 1, UpdatedAtUnix: 500})
	createScene(t, db, domain.Scene{ID: "idle", CampaignID: "c3", Status: domain.SceneAwaitingActions, Revision: 1, UpdatedAtUnix: 50})

	got, err := repo.ListStuck(ctx, db, 200)
	if err != nil {
		t.Fatalf("ListStuck: %v", err)
	}
	if len(got) != 1 || got[0].ID != "old" {
		t.Errorf("stuck = %+v", got)
	}
}

func TestSceneRepo_NotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := (&SceneRepo{}).GetByID(context.Background(), db, "missing")
	if !errors.Is(err, domain.ErrSceneNotFound) {
		t.Errorf("err = %v, want ErrSceneNotFound", err)
	}
}

func TestActionRepo_PendingAndFail(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &ActionRepo{}

	tx, _ := db.Begin()
	for i, id := range []string{"a1", "a2", "a3"} {
		a := domain.PlayerAction{ID: id, SceneID: "s", CampaignID: "c", CharacterID: "ch", ActionText: "x",
			ExchangeNumber: 1, Priority: domain.PriorityOther, Status: domain.ActionPending, CreatedAtUnix: int64(i)}
		if err := repo.CreateTx(ctx, tx, a); err != nil {
			t.Fatalf("CreateTx: %v", err)
		}
	}
	tx.Commit()

	tx, _ = db.Begin()
	repo.SetStatusTx(ctx, tx, []string{"a1"}, domain.ActionResolved)
	repo.SetStatusTx(ctx, tx, []string{"a2"}, domain.ActionFailed)
	tx.Commit()

	pending, _ := repo.ListPending(ctx, db, "s")
	if len(pending) != 1 || pending[0].ID != "a3" {
		t.Fatalf("pending = %+v", pending)
	}

	tx, _ = db.Begin()
	n, err := repo.FailPendingTx(ctx, tx, "s")
	tx.Commit()
	if err != nil || n != 1 {
		t.Fatalf("FailPendingTx = %d, %v", n, err)
	}
	pending, _ = repo.ListPending(ctx, db, "s")
	if len(pending) != 0 {
		t.Errorf("pending after fail = %d, want 0", len(pending))
	}
	a1, _ := repo.GetByID(ctx, db, "a1")
	if a1.Status != domain.ActionResolved {
		t.Errorf("a1 status = %s, resolved actions must be left alone", a1.Status)
	}

	all, _ := repo.ListByExchange(ctx, db, "s", 1)
	if len(all) != 3 {
		t.Errorf("ListByExchange = %d, want 3", len(all))
	}
}
