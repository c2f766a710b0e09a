package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/taleforge/sceneengine/internal/domain"
)

// SceneRepo handles persistence for Scene records.
type SceneRepo struct{}

const sceneColumns = `id, campaign_id, scene_number, status, intro_text, resolution_text,
participants_json, waiting_on_json, current_exchange_number, exchange_state_json,
revision, created_at_unix, updated_at_unix`

// CreateTx inserts a new scene within an existing transaction. A second
// active scene in the same campaign is rejected with ErrActiveSceneExists.
func (r *SceneRepo) CreateTx(ctx context.Context, tx *sql.Tx, s domain.Scene) error {
	const q = `INSERT INTO scenes (` + sceneColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q, sceneArgs(s)...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: scenes.campaign_id") {
			return domain.ErrActiveSceneExists
		}
		return fmt.Errorf("create scene: %w", err)
	}
	return nil
}

// UpdateTx writes every mutable field using optimistic locking on revision.
// On success s.Revision is advanced to the stored value.
func (r *SceneRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s *domain.Scene) error {
	const q = `UPDATE scenes SET
		status = ?,
		intro_text = ?,
		resolution_text = ?,
		participants_json = ?,
		waiting_on_json = ?,
		current_exchange_number = ?,
		exchange_state_json = ?,
		revision = revision + 1,
		updated_at_unix = ?
	WHERE id = ? AND revision = ?`

	res, err := tx.ExecContext(ctx, q,
		string(s.Status),
		s.IntroText,
		s.ResolutionText,
		participantsJSON(s.Participants),
		encodeJSON(nonNil(s.WaitingOnUsers)),
		s.CurrentExchangeNumber,
		exchangeJSON(s.ExchangeState),
		s.UpdatedAtUnix,
		s.ID,
		s.Revision,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: scenes.campaign_id") {
			return domain.ErrActiveSceneExists
		}
		return fmt.Errorf("update scene: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	s.Revision++
	return nil
}

// GetByID retrieves a scene by its ID.
func (r *SceneRepo) GetByID(ctx context.Context, q DBTX, id string) (*domain.Scene, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	s, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSceneNotFound
		}
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return s, nil
}

// GetActive returns the campaign's AWAITING_ACTIONS or RESOLVING scene.
// Returns nil if the campaign has none.
func (r *SceneRepo) GetActive(ctx context.Context, q DBTX, campaignID string) (*domain.Scene, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes
WHERE campaign_id = ? AND status IN ('AWAITING_ACTIONS', 'RESOLVING')
LIMIT 1`, campaignID)
	s, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active scene: %w", err)
	}
	return s, nil
}

// NextSceneNumber returns one past the campaign's highest scene number.
func (r *SceneRepo) NextSceneNumber(ctx context.Context, q DBTX, campaignID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(scene_number), 0) + 1 FROM scenes WHERE campaign_id = ?`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next scene number: %w", err)
	}
	return n, nil
}

// ListByCampaign returns a campaign's scenes by scene number.
func (r *SceneRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.Scene, error) {
	return r.list(ctx, q, `SELECT `+sceneColumns+` FROM scenes WHERE campaign_id = ? ORDER BY scene_number ASC`, campaignID)
}

// ListStuck returns RESOLVING scenes last written before cutoffUnix.
func (r *SceneRepo) ListStuck(ctx context.Context, q DBTX, cutoffUnix int64) ([]domain.Scene, error) {
	return r.list(ctx, q, `SELECT `+sceneColumns+` FROM scenes
WHERE status = 'RESOLVING' AND updated_at_unix < ?
ORDER BY updated_at_unix ASC`, cutoffUnix)
}

func (r *SceneRepo) list(ctx context.Context, q DBTX, query string, args ...any) ([]domain.Scene, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []domain.Scene
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, *s)
	}
	return scenes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanScene(row scanner) (*domain.Scene, error) {
	var s domain.Scene
	var status, participants, waiting, exchange string
	err := row.Scan(&s.ID, &s.CampaignID, &s.SceneNumber, &status, &s.IntroText, &s.ResolutionText,
		&participants, &waiting, &s.CurrentExchangeNumber, &exchange,
		&s.Revision, &s.CreatedAtUnix, &s.UpdatedAtUnix)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SceneStatus(status)
	if participants != "" {
		s.Participants = &domain.Participants{}
		if err := decodeJSON(participants, s.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	if err := decodeJSON(waiting, &s.WaitingOnUsers); err != nil {
		return nil, fmt.Errorf("decode waiting users: %w", err)
	}
	if exchange != "" {
		s.ExchangeState = &domain.ExchangeState{}
		if err := decodeJSON(exchange, s.ExchangeState); err != nil {
			return nil, fmt.Errorf("decode exchange state: %w", err)
		}
	}
	return &s, nil
}

func sceneArgs(s domain.Scene) []any {
	return []any{
		s.ID,
		s.CampaignID,
		s.SceneNumber,
		string(s.Status),
		s.IntroText,
		s.ResolutionText,
		participantsJSON(s.Participants),
		encodeJSON(nonNil(s.WaitingOnUsers)),
		s.CurrentExchangeNumber,
		exchangeJSON(s.ExchangeState),
		s.Revision,
		s.CreatedAtUnix,
		s.UpdatedAtUnix,
	}
}

func participantsJSON(p *domain.Participants) string {
	if p == nil {
		return ""
	}
	return encodeJSON(p)
}

func exchangeJSON(e *domain.ExchangeState) string {
	if e == nil {
		return ""
	}
	return encodeJSON(e)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
