package store

import (
	"context"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// CampaignLogRepo handles persistence for CampaignLogEntry records.
type CampaignLogRepo struct{}

// Append inserts a campaign log entry.
func (r *CampaignLogRepo) Append(ctx context.Context, q DBTX, e domain.CampaignLogEntry) error {
	const query = `INSERT INTO campaign_logs (campaign_id, scene_id, scene_number, exchange_number, turn_number, in_game_date, excerpt, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, e.CampaignID, e.SceneID, e.SceneNumber, e.ExchangeNumber,
		e.TurnNumber, e.InGameDate, e.Excerpt, e.CreatedAt); err != nil {
		return fmt.Errorf("append campaign log: %w", err)
	}
	return nil
}

// ListByCampaign returns up to limit of a campaign's newest entries, newest first.
func (r *CampaignLogRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string, limit int) ([]domain.CampaignLogEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, campaign_id, scene_id, scene_number, exchange_number, turn_number, in_game_date, excerpt, created_at
FROM campaign_logs WHERE campaign_id = ? ORDER BY id DESC LIMIT ?`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list campaign log: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignLogEntry
	for rows.Next() {
		var e domain.CampaignLogEntry
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.SceneID, &e.SceneNumber, &e.ExchangeNumber,
			&e.TurnNumber, &e.InGameDate, &e.Excerpt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
