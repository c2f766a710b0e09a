package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// ActionRepo handles persistence for PlayerAction records.
type ActionRepo struct{}

const actionColumns = `id, scene_id, campaign_id, character_id, user_id, action_text,
exchange_number, priority, status, created_at_unix`

// CreateTx inserts a new player action within an existing transaction.
func (r *ActionRepo) CreateTx(ctx context.Context, tx *sql.Tx, a domain.PlayerAction) error {
	const q = `INSERT INTO player_actions (` + actionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.SceneID,
		a.CampaignID,
		a.CharacterID,
		a.UserID,
		a.ActionText,
		a.ExchangeNumber,
		string(a.Priority),
		string(a.Status),
		a.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

// GetByID retrieves an action by its ID.
func (r *ActionRepo) GetByID(ctx context.Context, q DBTX, id string) (*domain.PlayerAction, error) {
	row := q.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM player_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrActionNotFound
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}

// ListPending returns a scene's pending actions in submission order.
func (r *ActionRepo) ListPending(ctx context.Context, q DBTX, sceneID string) ([]domain.PlayerAction, error) {
	return r.list(ctx, q, `SELECT `+actionColumns+` FROM player_actions
WHERE scene_id = ? AND status = 'pending'
ORDER BY created_at_unix ASC, id ASC`, sceneID)
}

// ListByExchange returns every action of one exchange in submission order.
func (r *ActionRepo) ListByExchange(ctx context.Context, q DBTX, sceneID string, exchange int) ([]domain.PlayerAction, error) {
	return r.list(ctx, q, `SELECT `+actionColumns+` FROM player_actions
WHERE scene_id = ? AND exchange_number = ?
ORDER BY created_at_unix ASC, id ASC`, sceneID, exchange)
}

// SetStatusTx moves the given actions to status.
func (r *ActionRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, ids []string, status domain.ActionStatus) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE player_actions SET status = ? WHERE id = ?`, string(status), id); err != nil {
			return fmt.Errorf("set action status: %w", err)
		}
	}
	return nil
}

// FailPendingTx marks every still pending action of a scene as failed.
func (r *ActionRepo) FailPendingTx(ctx context.Context, tx *sql.Tx, sceneID string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE player_actions SET status = 'failed' WHERE scene_id = ? AND status = 'pending'`, sceneID)
	if err != nil {
		return 0, fmt.Errorf("fail pending actions: %w", err)
	}
	return res.RowsAffected()
}

func (r *ActionRepo) list(ctx context.Context, q DBTX, query string, args ...any) ([]domain.PlayerAction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.PlayerAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, *a)
	}
	return actions, rows.Err()
}

func scanAction(row scanner) (*domain.PlayerAction, error) {
	var a domain.PlayerAction
	var priority, status string
	if err := row.Scan(&a.ID, &a.SceneID, &a.CampaignID, &a.CharacterID, &a.UserID, &a.ActionText,
		&a.ExchangeNumber, &priority, &status, &a.CreatedAtUnix); err != nil {
		return nil, err
	}
	a.Priority = domain.ActionPriority(priority)
	a.Status = domain.ActionStatus(status)
	return &a, nil
}
