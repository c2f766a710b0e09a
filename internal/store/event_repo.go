package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// EventRepo handles persistence for SceneEvent records.
type EventRepo struct{}

// AppendTx inserts a scene event within an existing transaction. A zero
// SeqNo is replaced by the scene's next sequence number; the stored number
// is returned.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.SceneEvent) (int64, error) {
	if event.SeqNo == 0 {
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq_no), 0) + 1 FROM scene_events WHERE scene_id = ?`, event.SceneID).Scan(&event.SeqNo)
		if err != nil {
			return 0, fmt.Errorf("next event seq: %w", err)
		}
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}

	const q = `INSERT INTO scene_events (scene_id, campaign_id, seq_no, event_type, payload_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.SceneID,
		event.CampaignID,
		event.SeqNo,
		event.EventType,
		event.PayloadJSON,
		event.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return event.SeqNo, nil
}

// ListByScene returns events for a scene with sequence numbers greater than sinceSeq,
// ordered by sequence number ascending.
func (r *EventRepo) ListByScene(ctx context.Context, q DBTX, sceneID string, sinceSeq int64) ([]domain.SceneEvent, error) {
	const query = `SELECT id, scene_id, campaign_id, seq_no, event_type, payload_json, created_at
FROM scene_events
WHERE scene_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := q.QueryContext(ctx, query, sceneID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.SceneEvent
	for rows.Next() {
		var e domain.SceneEvent
		if err := rows.Scan(&e.ID, &e.SceneID, &e.CampaignID, &e.SeqNo, &e.EventType, &e.PayloadJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
