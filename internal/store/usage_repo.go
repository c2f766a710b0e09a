package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// UsageRepo handles persistence for narrator usage records.
type UsageRepo struct{}

// Create inserts one narrator attempt.
func (r *UsageRepo) Create(ctx context.Context, q DBTX, d domain.CostDelta) error {
	const query = `INSERT INTO narrator_usage (campaign_id, input_tokens, output_tokens, amount_usd, latency_ms, success, cache_hit, model, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query,
		d.CampaignID,
		d.InputTokens,
		d.OutputTokens,
		d.AmountUSD,
		d.LatencyMs,
		boolInt(d.Success),
		boolInt(d.CacheHit),
		d.Model,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

// ListByCampaign returns all usage records for a campaign, oldest first.
func (r *UsageRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.CostDelta, error) {
	const query = `SELECT campaign_id, input_tokens, output_tokens, amount_usd, latency_ms, success, cache_hit, model, created_at
FROM narrator_usage
WHERE campaign_id = ?
ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var out []domain.CostDelta
	for rows.Next() {
		var d domain.CostDelta
		var success, hit int
		if err := rows.Scan(&d.CampaignID, &d.InputTokens, &d.OutputTokens, &d.AmountUSD, &d.LatencyMs,
			&success, &hit, &d.Model, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		d.Success = success != 0
		d.CacheHit = hit != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// UsageRecorder persists gateway ledger records to the narrator_usage table.
type UsageRecorder struct {
	DB   *sql.DB
	Repo *UsageRepo
}

// RecordUsage implements gateway.UsageSink.
func (u *UsageRecorder) RecordUsage(ctx context.Context, d domain.CostDelta) error {
	return u.Repo.Create(ctx, u.DB, d)
}
