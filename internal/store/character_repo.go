package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taleforge/sceneengine/internal/domain"
)

// CharacterRepo handles persistence for Character records. Nested fields
// are stored as JSON columns.
type CharacterRepo struct{}

const characterColumns = `id, campaign_id, name, user_id, location, appearance, personality, harm,
conditions_json, stats_json, perks_json, moves_json, stat_usage_json, action_tags_json,
relationships_json, consequences_json, equipment_json, inventory_json, resources_json,
advancement_json, updated_at_unix`

// CreateTx inserts a new character within an existing transaction.
func (r *CharacterRepo) CreateTx(ctx context.Context, tx *sql.Tx, c domain.Character) error {
	const q = `INSERT INTO characters (` + characterColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := append([]any{c.ID, c.CampaignID, c.Name, c.UserID}, characterBody(c)...)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create character: %w", err)
	}
	return nil
}

// UpdateTx writes every mutable field of a character.
func (r *CharacterRepo) UpdateTx(ctx context.Context, tx *sql.Tx, c domain.Character) error {
	const q = `UPDATE characters SET
		location = ?, appearance = ?, personality = ?, harm = ?,
		conditions_json = ?, stats_json = ?, perks_json = ?, moves_json = ?,
		stat_usage_json = ?, action_tags_json = ?, relationships_json = ?,
		consequences_json = ?, equipment_json = ?, inventory_json = ?,
		resources_json = ?, advancement_json = ?, updated_at_unix = ?
	WHERE id = ?`
	args := append(characterBody(c), c.ID)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update character: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCharacterNotFound
	}
	return nil
}

// GetByID retrieves a character by its ID.
func (r *CharacterRepo) GetByID(ctx context.Context, q DBTX, id string) (*domain.Character, error) {
	row := q.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCharacterNotFound
		}
		return nil, fmt.Errorf("get character: %w", err)
	}
	return c, nil
}

// ListByCampaign returns a campaign's characters ordered by name.
func (r *CharacterRepo) ListByCampaign(ctx context.Context, q DBTX, campaignID string) ([]domain.Character, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+characterColumns+` FROM characters
WHERE campaign_id = ? ORDER BY name ASC, id ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func characterBody(c domain.Character) []any {
	return []any{
		c.Location,
		c.Appearance,
		c.Personality,
		c.Harm,
		encodeJSON(c.Conditions),
		encodeJSON(c.Stats),
		encodeJSON(c.Perks),
		encodeJSON(c.Moves),
		encodeJSON(c.StatUsage),
		encodeJSON(c.ActionTags),
		encodeJSON(c.Relationships),
		encodeJSON(c.Consequences),
		encodeJSON(c.Equipment),
		encodeJSON(c.Inventory),
		encodeJSON(c.Resources),
		encodeJSON(c.Advancement),
		c.UpdatedAtUnix,
	}
}

func scanCharacter(row scanner) (*domain.Character, error) {
	var c domain.Character
	var conditions, stats, perks, moves, usage, tags, rels, cons, equip, inv, res, adv string
	if err := row.Scan(&c.ID, &c.CampaignID, &c.Name, &c.UserID, &c.Location, &c.Appearance, &c.Personality, &c.Harm,
		&conditions, &stats, &perks, &moves, &usage, &tags, &rels, &cons, &equip, &inv, &res, &adv,
		&c.UpdatedAtUnix); err != nil {
		return nil, err
	}
	fields := []struct {
		raw string
		dst any
	}{
		{conditions, &c.Conditions},
		{stats, &c.Stats},
		{perks, &c.Perks},
		{moves, &c.Moves},
		{usage, &c.StatUsage},
		{tags, &c.ActionTags},
		{rels, &c.Relationships},
		{cons, &c.Consequences},
		{equip, &c.Equipment},
		{inv, &c.Inventory},
		{res, &c.Resources},
		{adv, &c.Advancement},
	}
	for _, f := range fields {
		if err := decodeJSON(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decode character %s: %w", c.ID, err)
		}
	}
	return &c, nil
}
