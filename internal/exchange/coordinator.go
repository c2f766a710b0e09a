package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/store"
)

// Coordinator records player actions against a scene's current exchange.
// Exchange state is updated by compare-and-swap on the scene revision.
type Coordinator struct {
	DB         *sql.DB
	Scenes     *store.SceneRepo
	Actions    *store.ActionRepo
	Events     *store.EventRepo
	Classifier classify.Classifier
	Logger     *slog.Logger

	// CASAttempts bounds retries after an optimistic lock conflict.
	CASAttempts uint64
	CASBackoff  time.Duration

	Now func() time.Time
}

// NewCoordinator creates a Coordinator with default repos and retry policy.
func NewCoordinator(db *sql.DB, c classify.Classifier) *Coordinator {
	if c == nil {
		c = classify.Default()
	}
	return &Coordinator{
		DB:          db,
		Scenes:      &store.SceneRepo{},
		Actions:     &store.ActionRepo{},
		Events:      &store.EventRepo{},
		Classifier:  c,
		CASAttempts: 5,
		CASBackoff:  10 * time.Millisecond,
		Now:         time.Now,
	}
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Submission is a new player action.
type Submission struct {
	SceneID     string
	CharacterID string
	UserID      string
	Text        string
}

// Submit classifies and persists a pending action bound to the scene's
// current exchange and records it, all in one transaction.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (*domain.PlayerAction, *domain.Scene, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" {
		return nil, nil, domain.ErrEmptyAction
	}

	var action *domain.PlayerAction
	var scene *domain.Scene
	err := c.cas(ctx, sub.SceneID, func(tx *sql.Tx, s *domain.Scene, now int64) error {
		if s.Status != domain.SceneAwaitingActions {
			return domain.NewEngineError(domain.ErrSceneNotAwaiting, fmt.Sprintf("scene %s is %s", s.ID, s.Status))
		}
		if s.Participants != nil && len(s.Participants.CharacterIDs) > 0 && !contains(s.Participants.CharacterIDs, sub.CharacterID) {
			return domain.ErrNotParticipant
		}

		a := domain.PlayerAction{
			ID:             domain.NewID("act"),
			SceneID:        s.ID,
			CampaignID:     s.CampaignID,
			CharacterID:    sub.CharacterID,
			UserID:         sub.UserID,
			ActionText:     text,
			ExchangeNumber: s.CurrentExchangeNumber,
			Priority:       c.Classifier.Priority(text),
			Status:         domain.ActionPending,
			CreatedAtUnix:  now,
		}
		if err := c.Actions.CreateTx(ctx, tx, a); err != nil {
			return err
		}
		apply(s, sub.CharacterID, sub.UserID, now)
		payload := fmt.Sprintf(`{"action_id":%q,"character_id":%q,"exchange":%d}`, a.ID, a.CharacterID, a.ExchangeNumber)
		if _, err := c.Events.AppendTx(ctx, tx, domain.SceneEvent{
			SceneID: s.ID, CampaignID: s.CampaignID, EventType: "action_submitted",
			PayloadJSON: payload, CreatedAt: now,
		}); err != nil {
			return err
		}
		action, scene = &a, s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	c.logger().Info("action recorded",
		"campaign_id", scene.CampaignID, "scene_id", scene.ID, "character_id", sub.CharacterID,
		"exchange", scene.CurrentExchangeNumber, "priority", action.Priority,
		"complexity", scene.ExchangeState.Complexity)
	return action, scene, nil
}

// CanResolve loads the scene and reports whether its exchange is ready.
func (c *Coordinator) CanResolve(ctx context.Context, sceneID string, force bool) (bool, error) {
	s, err := c.Scenes.GetByID(ctx, c.DB, sceneID)
	if err != nil {
		return false, err
	}
	return CanResolve(s, force), nil
}

func apply(s *domain.Scene, characterID, userID string, now int64) {
	if s.CurrentExchangeNumber == 0 {
		s.CurrentExchangeNumber = 1
	}
	s.ExchangeState = Record(s.ExchangeState, s.CurrentExchangeNumber, characterID, now)
	if userID != "" {
		s.WaitingOnUsers = removeString(s.WaitingOnUsers, userID)
	}
	s.UpdatedAtUnix = now
}

// cas runs fn against a fresh copy of the scene inside a transaction and
// retries the whole read-modify-write when the revision moved underneath.
func (c *Coordinator) cas(ctx context.Context, sceneID string, fn func(tx *sql.Tx, s *domain.Scene, now int64) error) error {
	backoff := retry.WithMaxRetries(c.CASAttempts, retry.NewConstant(c.CASBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := c.DB.BeginTx(ctx, nil)
		if err != nil {
			return domain.Wrap(domain.ErrStoreWrite, err)
		}
		defer tx.Rollback()

		s, err := c.Scenes.GetByID(ctx, tx, sceneID)
		if err != nil {
			return err
		}
		if err := fn(tx, s, c.Now().Unix()); err != nil {
			return err
		}
		if err := c.Scenes.UpdateTx(ctx, tx, s); err != nil {
			if errors.Is(err, domain.ErrOptimisticLock) {
				c.logger().Debug("exchange state conflict, retrying", "scene_id", sceneID)
				return retry.RetryableError(err)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return domain.Wrap(domain.ErrStoreWrite, err)
		}
		return nil
	})
}
