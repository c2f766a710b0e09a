package exchange

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

func setupCoordinator(t *testing.T, participants *domain.Participants) (*Coordinator, *sql.DB) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "exchange.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, (&store.SceneRepo{}).CreateTx(context.Background(), tx, domain.Scene{
		ID: "scene-1", CampaignID: "camp-1", SceneNumber: 1, Status: domain.SceneAwaitingActions,
		IntroText: "A tavern at dusk.", Participants: participants,
		WaitingOnUsers: []string{"u-a", "u-b"}, CurrentExchangeNumber: 1, Revision: 1,
	}))
	require.NoError(t, tx.Commit())

	return NewCoordinator(db, nil), db
}

func TestSubmit_RecordsActionAndExchange(t *testing.T) {
	c, db := setupCoordinator(t, &domain.Participants{CharacterIDs: []string{"a", "b"}, UserIDs: []string{"u-a", "u-b"}})
	ctx := context.Background()

	action, scene, err := c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "a", UserID: "u-a", Text: "  I attack the guard  "})
	require.NoError(t, err)
	assert.Equal(t, "I attack the guard", action.ActionText)
	assert.Equal(t, domain.PriorityCombat, action.Priority)
	assert.Equal(t, 1, action.ExchangeNumber)
	assert.Equal(t, []string{"u-b"}, scene.WaitingOnUsers)
	assert.False(t, CanResolve(scene, false))

	_, _, err = c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "b", UserID: "u-b", Text: "I talk to the barkeep"})
	require.NoError(t, err)

	ready, err := c.CanResolve(ctx, "scene-1", false)
	require.NoError(t, err)
	assert.True(t, ready)

	pending, err := (&store.ActionRepo{}).ListPending(ctx, db, "scene-1")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	events, err := (&store.EventRepo{}).ListByScene(ctx, db, "scene-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "action_submitted", events[0].EventType)
}

func TestSubmit_Rejections(t *testing.T) {
	c, db := setupCoordinator(t, &domain.Participants{CharacterIDs: []string{"a"}, UserIDs: []string{"u-a"}})
	ctx := context.Background()

	_, _, err := c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "a", Text: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyAction)

	_, _, err = c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "stranger", Text: "I wave"})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, _, err = c.Submit(ctx, Submission{SceneID: "missing", CharacterID: "a", Text: "I wave"})
	assert.ErrorIs(t, err, domain.ErrSceneNotFound)

	repo := &store.SceneRepo{}
	s, err := repo.GetByID(ctx, db, "scene-1")
	require.NoError(t, err)
	s.Status = domain.SceneResolving
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.UpdateTx(ctx, tx, s))
	require.NoError(t, tx.Commit())

	_, _, err = c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "a", Text: "I wave"})
	assert.ErrorIs(t, err, domain.ErrSceneNotAwaiting)
}

func TestSubmit_OpenSceneAcceptsAnyone(t *testing.T) {
	c, _ := setupCoordinator(t, nil)
	_, scene, err := c.Submit(context.Background(), Submission{SceneID: "scene-1", CharacterID: "x", Text: "I look around"})
	require.NoError(t, err)
	assert.True(t, CanResolve(scene, false))
}

func TestSubmit_RepeatActionAdvancesRevision(t *testing.T) {
	c, db := setupCoordinator(t, &domain.Participants{CharacterIDs: []string{"a", "b"}, UserIDs: []string{"u-a", "u-b"}})
	ctx := context.Background()

	_, scene, err := c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "a", UserID: "u-a", Text: "I sneak past"})
	require.NoError(t, err)
	rev := scene.Revision

	_, scene, err = c.Submit(ctx, Submission{SceneID: "scene-1", CharacterID: "a", UserID: "u-a", Text: "I keep to the shadows"})
	require.NoError(t, err)
	assert.Equal(t, 2, scene.ExchangeState.ActionsThisExchange)
	assert.Equal(t, []string{"a"}, scene.ExchangeState.PlayersActed)
	assert.False(t, CanResolve(scene, false), "b has not acted yet")

	got, err := (&store.SceneRepo{}).GetByID(ctx, db, "scene-1")
	require.NoError(t, err)
	assert.Equal(t, rev+1, got.Revision)
}
