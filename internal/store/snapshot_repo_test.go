package store

import (
	"context"
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
)

func TestSnapshotRepo_SaveAndLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := &SnapshotRepo{}

	got, err := repo.GetLatest(ctx, db, "scene-1")
	if err != nil {
		t.Fatalf("GetLatest empty: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil snapshot, got %+v", got)
	}

	for ex := 1; ex <= 2; ex++ {
		snap := domain.ResolutionSnapshot{SceneID: "scene-1", CampaignID: "camp-1", ExchangeNumber: ex,
			Level: "full", ChangesJSON: `[]`, Checksum: "abc", CreatedAt: int64(ex)}
		if err := repo.Save(ctx, db, snap); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err = repo.GetLatest(ctx, db, "scene-1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got == nil || got.ExchangeNumber != 2 {
		t.Errorf("latest = %+v, want exchange 2", got)
	}
}
