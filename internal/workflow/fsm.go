package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// validTransitions defines the legal scene status transitions.
// Each key is a source status, and the value is the set of valid targets.
var validTransitions = map[domain.SceneStatus]map[domain.SceneStatus]bool{
	domain.SceneAwaitingActions: {domain.SceneResolving: true, domain.SceneResolved: true},
	domain.SceneResolving:       {domain.SceneAwaitingActions: true}, // success reopens, failure reverts
}

// IsValidTransition checks if a scene status transition is legal.
func IsValidTransition(from, to domain.SceneStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Scene event types appended to the scene event log.
const (
	EventTypeSceneCreated     = "scene_created"
	EventTypeSceneResolving   = "scene_resolving"
	EventTypeExchangeResolved = "exchange_resolved"
	EventTypeResolutionFailed = "resolution_failed"
	EventTypeSceneEnded       = "scene_ended"
	EventTypeSceneRecovered   = "scene_recovered"
)

// transitionTx moves s to status to, appends an event of eventType and writes
// the scene under its revision lock. The caller owns tx.
func (e *Engine) transitionTx(ctx context.Context, tx *sql.Tx, s *domain.Scene, to domain.SceneStatus, eventType string, payload map[string]any) error {
	if !IsValidTransition(s.Status, to) {
		return domain.NewEngineError(domain.ErrInvalidTransition,
			fmt.Sprintf("illegal transition %s -> %s", s.Status, to))
	}
	from := s.Status
	now := e.now().Unix()
	s.Status = to
	s.UpdatedAtUnix = now

	if payload == nil {
		payload = map[string]any{}
	}
	payload["from"] = from
	payload["to"] = to
	payload["exchange"] = s.CurrentExchangeNumber
	if err := e.appendEventTx(ctx, tx, s, eventType, payload); err != nil {
		return err
	}
	return e.Scenes.UpdateTx(ctx, tx, s)
}

func (e *Engine) appendEventTx(ctx context.Context, tx *sql.Tx, s *domain.Scene, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	if _, err := e.Events.AppendTx(ctx, tx, domain.SceneEvent{
		SceneID:     s.ID,
		CampaignID:  s.CampaignID,
		EventType:   eventType,
		PayloadJSON: string(body),
		CreatedAt:   e.now().Unix(),
	}); err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}
