package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// FactionRepo handles persistence for Faction records.
type FactionRepo struct{}

// CreateTx inserts a new faction within an existing transaction.
func (r *FactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, f domain.Faction) error {
	const q = `INSERT INTO factions (id, campaign_id, name, plan, threat_level, resources_json, gm_notes, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, f.ID, f.CampaignID, f.Name, f.Plan, string(f.ThreatLevel),
		orEmptyObject(f.ResourcesJSON), f.GMNotes, f.UpdatedAtUnix); err != nil {
		return fmt.Errorf("create faction: %w", err)
	}
	return nil
}

// UpdateTx writes a faction's mutable fields.
func (r *FactionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, f domain.Faction) error {
	const q = `UPDATE factions SET plan = ?, threat_level = ?, resources_json = ?, gm_notes = ?, updated_at_unix = ?
WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, f.Plan, string(f.ThreatLevel), orEmptyObject(f.ResourcesJSON), f.GMNotes, f.UpdatedAtUnix, f.ID)
	if err != nil {
		return fmt.Errorf("update faction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrFactionNotFound
	}
	return nil
}

// ListByCampaign returns a campaign's factions ordered by name.
func (r *FactionRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.Faction, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, campaign_id, name, plan, threat_level, resources_json, gm_notes, updated_at_unix
FROM factions WHERE campaign_id = ? ORDER BY name ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list factions: %w", err)
	}
	defer rows.Close()

	var out []domain.Faction
	for rows.Next() {
		var f domain.Faction
		var threat string
		if err := rows.Scan(&f.ID, &f.CampaignID, &f.Name, &f.Plan, &threat, &f.ResourcesJSON, &f.GMNotes, &f.UpdatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan faction: %w", err)
		}
		f.ThreatLevel = domain.ThreatLevel(threat)
		out = append(out, f)
	}
	return out, rows.Err()
}

// NPCRepo handles persistence for NPC records.
type NPCRepo struct{}

// CreateTx inserts a new NPC within an existing transaction.
func (r *NPCRepo) CreateTx(ctx context.Context, tx *sql.Tx, n domain.NPC) error {
	const q = `INSERT INTO npcs (id, campaign_id, name, notes, tags_json, updated_at_unix) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, n.ID, n.CampaignID, n.Name, n.Notes, encodeJSON(nonNil(n.Tags)), n.UpdatedAtUnix); err != nil {
		return fmt.Errorf("create npc: %w", err)
	}
	return nil
}

// UpdateTx writes an NPC's notes and tags.
func (r *NPCRepo) UpdateTx(ctx context.Context, tx *sql.Tx, n domain.NPC) error {
	res, err := tx.ExecContext(ctx, `UPDATE npcs SET notes = ?, tags_json = ?, updated_at_unix = ? WHERE id = ?`,
		n.Notes, encodeJSON(nonNil(n.Tags)), n.UpdatedAtUnix, n.ID)
	if err != nil {
		return fmt.Errorf("update npc: %w", err)
	}
	if c, _ := res.RowsAffected(); c == 0 {
		return domain.ErrNPCNotFound
	}
	return nil
}

// ListByCampaign returns a campaign's NPCs ordered by name.
func (r *NPCRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.NPC, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, campaign_id, name, notes, tags_json, updated_at_unix
FROM npcs WHERE campaign_id = ? ORDER BY name ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list npcs: %w", err)
	}
	defer rows.Close()

	var out []domain.NPC
	for rows.Next() {
		var n domain.NPC
		var tags string
		if err := rows.Scan(&n.ID, &n.CampaignID, &n.Name, &n.Notes, &tags, &n.UpdatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan npc: %w", err)
		}
		if err := decodeJSON(tags, &n.Tags); err != nil {
			return nil, fmt.Errorf("decode npc tags: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ClockRepo handles persistence for Clock records.
type ClockRepo struct{}

// CreateTx inserts a new clock within an existing transaction.
func (r *ClockRepo) CreateTx(ctx context.Context, tx *sql.Tx, c domain.Clock) error {
	const q = `INSERT INTO clocks (id, campaign_id, name, value, max, visibility, updated_at_unix) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, c.ID, c.CampaignID, c.Name, c.Value, c.Max, string(c.Visibility), c.UpdatedAtUnix); err != nil {
		return fmt.Errorf("create clock: %w", err)
	}
	return nil
}

// UpdateTx writes a clock's value.
func (r *ClockRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c domain.Clock) error {
	res, err := tx.ExecContext(ctx, `UPDATE clocks SET value = ?, updated_at_unix = ? WHERE id = ?`, c.Value, c.UpdatedAtUnix, c.ID)
	if err != nil {
		return fmt.Errorf("update clock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrClockNotFound
	}
	return nil
}

// ListByCampaign returns a campaign's clocks ordered by name.
func (r *ClockRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.Clock, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, campaign_id, name, value, max, visibility, updated_at_unix
FROM clocks WHERE campaign_id = ? ORDER BY name ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list clocks: %w", err)
	}
	defer rows.Close()

	var out []domain.Clock
	for rows.Next() {
		var c domain.Clock
		var vis string
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Value, &c.Max, &vis, &c.UpdatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan clock: %w", err)
		}
		c.Visibility = domain.Visibility(vis)
		out = append(out, c)
	}
	return out, rows.Err()
}

// TimelineRepo handles persistence for TimelineEvent records.
type TimelineRepo struct{}

// CreateTx inserts a timeline event within an existing transaction.
func (r *TimelineRepo) CreateTx(ctx context.Context, tx *sql.Tx, e domain.TimelineEvent) error {
	const q = `INSERT INTO timeline_events (id, campaign_id, scene_id, turn_number, in_game_date, title, description, visibility, created_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, e.ID, e.CampaignID, e.SceneID, e.TurnNumber, e.InGameDate,
		e.Title, e.Description, string(e.Visibility), e.CreatedAtUnix); err != nil {
		return fmt.Errorf("create timeline event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit of the campaign's newest events, oldest first.
func (r *TimelineRepo) ListRecent(ctx context.Context, q DBTX, campaignID string, limit int) ([]domain.TimelineEvent, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, campaign_id, scene_id, turn_number, in_game_date, title, description, visibility, created_at_unix
FROM (SELECT * FROM timeline_events WHERE campaign_id = ? ORDER BY created_at_unix DESC, id DESC LIMIT ?)
ORDER BY created_at_unix ASC, id ASC`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEvent
	for rows.Next() {
		var e domain.TimelineEvent
		var vis string
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.SceneID, &e.TurnNumber, &e.InGameDate,
			&e.Title, &e.Description, &vis, &e.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Visibility = domain.Visibility(vis)
		out = append(out, e)
	}
	return out, rows.Err()
}

// WorldRepo handles persistence for WorldMeta records.
type WorldRepo struct{}

// CreateTx inserts a campaign's world meta within an existing transaction.
func (r *WorldRepo) CreateTx(ctx context.Context, tx *sql.Tx, m domain.WorldMeta) error {
	const q = `INSERT INTO world_meta (campaign_id, universe, ai_system_prompt, turn_number, in_game_date,
resolution_count, gm_notes_json, health_score, health_verdict, updated_at_unix)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, m.CampaignID, m.Universe, m.AISystemPrompt, m.TurnNumber, m.InGameDate,
		m.ResolutionCount, encodeJSON(nonNil(m.GMNotes)), m.HealthScore, string(m.HealthVerdict), m.UpdatedAtUnix); err != nil {
		return fmt.Errorf("create world meta: %w", err)
	}
	return nil
}

// UpdateTx writes a campaign's world meta.
func (r *WorldRepo) UpdateTx(ctx context.Context, tx *sql.Tx, m domain.WorldMeta) error {
	const q = `UPDATE world_meta SET universe = ?, ai_system_prompt = ?, turn_number = ?, in_game_date = ?,
resolution_count = ?, gm_notes_json = ?, health_score = ?, health_verdict = ?, updated_at_unix = ?
WHERE campaign_id = ?`
	res, err := tx.ExecContext(ctx, q, m.Universe, m.AISystemPrompt, m.TurnNumber, m.InGameDate,
		m.ResolutionCount, encodeJSON(nonNil(m.GMNotes)), m.HealthScore, string(m.HealthVerdict), m.UpdatedAtUnix,
		m.CampaignID)
	if err != nil {
		return fmt.Errorf("update world meta: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

// Get returns a campaign's world meta.
func (r *WorldRepo) Get(ctx context.Context, q DBTX, campaignID string) (*domain.WorldMeta, error) {
	row := q.QueryRowContext(ctx, `SELECT campaign_id, universe, ai_system_prompt, turn_number, in_game_date,
resolution_count, gm_notes_json, health_score, health_verdict, updated_at_unix
FROM world_meta WHERE campaign_id = ?`, campaignID)

	var m domain.WorldMeta
	var notes, verdict string
	err := row.Scan(&m.CampaignID, &m.Universe, &m.AISystemPrompt, &m.TurnNumber, &m.InGameDate,
		&m.ResolutionCount, &notes, &m.HealthScore, &verdict, &m.UpdatedAtUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get world meta: %w", err)
	}
	m.HealthVerdict = domain.HealthVerdict(verdict)
	if err := decodeJSON(notes, &m.GMNotes); err != nil {
		return nil, fmt.Errorf("decode gm notes: %w", err)
	}
	return &m, nil
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
