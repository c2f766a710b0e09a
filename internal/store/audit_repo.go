package store

import (
	"context"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, q DBTX, rec domain.AuditRecord) error {
	const query = `INSERT INTO audit_records (id, campaign_id, category, actor, action, request_json, decision_json, severity, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		rec.ID,
		rec.CampaignID,
		rec.Category,
		rec.Actor,
		rec.Action,
		orEmptyObject(rec.RequestJSON),
		orEmptyObject(rec.DecisionJSON),
		rec.Severity,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByCampaign returns all audit records for a campaign, ordered by creation time.
func (r *AuditRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.AuditRecord, error) {
	const query = `SELECT id, campaign_id, category, actor, action, request_json, decision_json, severity, created_at
FROM audit_records
WHERE campaign_id = ?
ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.Category, &a.Actor, &a.Action,
			&a.RequestJSON, &a.DecisionJSON, &a.Severity, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
