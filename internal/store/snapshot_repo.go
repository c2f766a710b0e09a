package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// SnapshotRepo handles persistence for ResolutionSnapshot records.
type SnapshotRepo struct{}

// Save inserts a resolution snapshot.
func (r *SnapshotRepo) Save(ctx context.Context, q DBTX, snap domain.ResolutionSnapshot) error {
	const query = `INSERT INTO resolution_snapshots (scene_id, campaign_id, exchange_number, level, changes_json, checksum, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		snap.SceneID,
		snap.CampaignID,
		snap.ExchangeNumber,
		snap.Level,
		snap.ChangesJSON,
		snap.Checksum,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a scene.
// Returns nil if no snapshot exists.
func (r *SnapshotRepo) GetLatest(ctx context.Context, q DBTX, sceneID string) (*domain.ResolutionSnapshot, error) {
	const query = `SELECT id, scene_id, campaign_id, exchange_number, level, changes_json, checksum, created_at
FROM resolution_snapshots
WHERE scene_id = ?
ORDER BY exchange_number DESC, id DESC
LIMIT 1`

	row := q.QueryRowContext(ctx, query, sceneID)

	var s domain.ResolutionSnapshot
	err := row.Scan(&s.ID, &s.SceneID, &s.CampaignID, &s.ExchangeNumber, &s.Level, &s.ChangesJSON, &s.Checksum, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return &s, nil
}
