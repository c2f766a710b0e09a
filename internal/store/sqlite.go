// Package store provides SQLite-backed persistence for the scene engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so readers can run inside
// an open transaction on the single SQLite connection.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS scenes (
	id                      TEXT PRIMARY KEY,
	campaign_id             TEXT NOT NULL,
	scene_number            INTEGER NOT NULL DEFAULT 1,
	status                  TEXT NOT NULL DEFAULT 'AWAITING_ACTIONS',
	intro_text              TEXT NOT NULL DEFAULT '',
	resolution_text         TEXT NOT NULL DEFAULT '',
	participants_json       TEXT NOT NULL DEFAULT '',
	waiting_on_json         TEXT NOT NULL DEFAULT '[]',
	current_exchange_number INTEGER NOT NULL DEFAULT 1,
	exchange_state_json     TEXT NOT NULL DEFAULT '',
	revision                INTEGER NOT NULL DEFAULT 1,
	created_at_unix         INTEGER NOT NULL DEFAULT 0,
	updated_at_unix         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scenes_campaign_status ON scenes(campaign_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scenes_one_active ON scenes(campaign_id)
	WHERE status IN ('AWAITING_ACTIONS', 'RESOLVING');

CREATE TABLE IF NOT EXISTS player_actions (
	id              TEXT PRIMARY KEY,
	scene_id        TEXT NOT NULL,
	campaign_id     TEXT NOT NULL,
	character_id    TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	action_text     TEXT NOT NULL,
	exchange_number INTEGER NOT NULL,
	priority        TEXT NOT NULL DEFAULT 'OTHER',
	status          TEXT NOT NULL DEFAULT 'pending',
	created_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_actions_scene_status ON player_actions(scene_id, status);

CREATE TABLE IF NOT EXISTS characters (
	id                 TEXT PRIMARY KEY,
	campaign_id        TEXT NOT NULL,
	name               TEXT NOT NULL,
	user_id            TEXT NOT NULL DEFAULT '',
	location           TEXT NOT NULL DEFAULT '',
	appearance         TEXT NOT NULL DEFAULT '',
	personality        TEXT NOT NULL DEFAULT '',
	harm               INTEGER NOT NULL DEFAULT 0,
	conditions_json    TEXT NOT NULL DEFAULT '[]',
	stats_json         TEXT NOT NULL DEFAULT '{}',
	perks_json         TEXT NOT NULL DEFAULT '[]',
	moves_json         TEXT NOT NULL DEFAULT '[]',
	stat_usage_json    TEXT NOT NULL DEFAULT '{}',
	action_tags_json   TEXT NOT NULL DEFAULT '{}',
	relationships_json TEXT NOT NULL DEFAULT '{}',
	consequences_json  TEXT NOT NULL DEFAULT '{}',
	equipment_json     TEXT NOT NULL DEFAULT '{}',
	inventory_json     TEXT NOT NULL DEFAULT '{}',
	resources_json     TEXT NOT NULL DEFAULT '{}',
	advancement_json   TEXT NOT NULL DEFAULT '{}',
	updated_at_unix    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_characters_campaign ON characters(campaign_id);

CREATE TABLE IF NOT EXISTS factions (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	plan            TEXT NOT NULL DEFAULT '',
	threat_level    TEXT NOT NULL DEFAULT 'none',
	resources_json  TEXT NOT NULL DEFAULT '{}',
	gm_notes        TEXT NOT NULL DEFAULT '',
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_factions_campaign ON factions(campaign_id);

CREATE TABLE IF NOT EXISTS npcs (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	notes           TEXT NOT NULL DEFAULT '',
	tags_json       TEXT NOT NULL DEFAULT '[]',
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_npcs_campaign ON npcs(campaign_id);

CREATE TABLE IF NOT EXISTS clocks (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	name            TEXT NOT NULL,
	value           INTEGER NOT NULL DEFAULT 0,
	max             INTEGER NOT NULL DEFAULT 6,
	visibility      TEXT NOT NULL DEFAULT 'public',
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_clocks_campaign ON clocks(campaign_id);

CREATE TABLE IF NOT EXISTS timeline_events (
	id              TEXT PRIMARY KEY,
	campaign_id     TEXT NOT NULL,
	scene_id        TEXT NOT NULL DEFAULT '',
	turn_number     INTEGER NOT NULL DEFAULT 0,
	in_game_date    TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	visibility      TEXT NOT NULL DEFAULT 'public',
	created_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_timeline_campaign ON timeline_events(campaign_id, created_at_unix);

CREATE TABLE IF NOT EXISTS world_meta (
	campaign_id      TEXT PRIMARY KEY,
	universe         TEXT NOT NULL DEFAULT '',
	ai_system_prompt TEXT NOT NULL DEFAULT '',
	turn_number      INTEGER NOT NULL DEFAULT 0,
	in_game_date     TEXT NOT NULL DEFAULT 'Day 1',
	resolution_count INTEGER NOT NULL DEFAULT 0,
	gm_notes_json    TEXT NOT NULL DEFAULT '[]',
	health_score     REAL NOT NULL DEFAULT 0.0,
	health_verdict   TEXT NOT NULL DEFAULT '',
	updated_at_unix  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scene_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	scene_id     TEXT NOT NULL,
	campaign_id  TEXT NOT NULL,
	seq_no       INTEGER NOT NULL,
	event_type   TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	UNIQUE(scene_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_scene_events_seq ON scene_events(scene_id, seq_no);

CREATE TABLE IF NOT EXISTS resolution_snapshots (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	scene_id        TEXT NOT NULL,
	campaign_id     TEXT NOT NULL,
	exchange_number INTEGER NOT NULL DEFAULT 0,
	level           TEXT NOT NULL DEFAULT '',
	changes_json    TEXT NOT NULL DEFAULT '[]',
	checksum        TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_scene ON resolution_snapshots(scene_id, exchange_number);

CREATE TABLE IF NOT EXISTS audit_records (
	id            TEXT PRIMARY KEY,
	campaign_id   TEXT NOT NULL,
	category      TEXT NOT NULL,
	actor         TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	request_json  TEXT NOT NULL DEFAULT '{}',
	decision_json TEXT NOT NULL DEFAULT '{}',
	severity      TEXT NOT NULL DEFAULT 'info',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_campaign ON audit_records(campaign_id);

CREATE TABLE IF NOT EXISTS narrator_usage (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id   TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	amount_usd    REAL NOT NULL DEFAULT 0.0,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	success       INTEGER NOT NULL DEFAULT 0,
	cache_hit     INTEGER NOT NULL DEFAULT 0,
	model         TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_usage_campaign ON narrator_usage(campaign_id);

CREATE TABLE IF NOT EXISTS campaign_logs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id     TEXT NOT NULL,
	scene_id        TEXT NOT NULL,
	scene_number    INTEGER NOT NULL DEFAULT 0,
	exchange_number INTEGER NOT NULL DEFAULT 0,
	turn_number     INTEGER NOT NULL DEFAULT 0,
	in_game_date    TEXT NOT NULL DEFAULT '',
	excerpt         TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_campaign_logs ON campaign_logs(campaign_id, id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

// Migrate applies the schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaV1)
	return err
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
