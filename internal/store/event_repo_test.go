package store

import (
	"context"
	"testing"
	"time"

	"github.com/taleforge/sceneengine/internal/domain"
)

func TestEventRepo_AppendAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EventRepo{}
	now := time.Now().Unix()

	types := []string{"scene_resolving", "exchange_resolved", "scene_resolving"}
	for i, et := range types {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		seq, err := repo.AppendTx(ctx, tx, domain.SceneEvent{SceneID: "scene-1", CampaignID: "camp-1", EventType: et, CreatedAt: now + int64(i)})
		if err != nil {
			t.Fatalf("AppendTx %d: %v", i, err)
		}
		if seq != int64(i+1) {
			t.Errorf("seq = %d, want %d", seq, i+1)
		}
		tx.Commit()
	}

	got, err := repo.ListByScene(ctx, db, "scene-1", 0)
	if err != nil {
		t.Fatalf("ListByScene: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].PayloadJSON != "{}" {
		t.Errorf("PayloadJSON = %q, want {}", got[0].PayloadJSON)
	}

	// List events since seq 1 (should return seq 2, 3).
	got, err = repo.ListByScene(ctx, db, "scene-1", 1)
	if err != nil {
		t.Fatalf("ListByScene since 1: %v", err)
	}
	if len(got) != 2 || got[0].SeqNo != 2 {
		t.Errorf("unexpected events: %+v", got)
	}
}

func TestEventRepo_DuplicateSeqRejected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &EventRepo{}

	tx, _ := db.Begin()
	if _, err := repo.AppendTx(ctx, tx, domain.SceneEvent{SceneID: "s", CampaignID: "c", SeqNo: 1, EventType: "a"}); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := repo.AppendTx(ctx, tx, domain.SceneEvent{SceneID: "s", CampaignID: "c", SeqNo: 1, EventType: "b"}); err == nil {
		t.Fatal("expected unique violation for duplicate seq_no")
	}
	tx.Rollback()
}
