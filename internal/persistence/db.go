// Package persistence provides SQLite-based game state storage and the
// per-owner lock registry that serializes mutating operations.
package persistence

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection for game state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn exposes the underlying connection for read paths and tests.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Beginx starts a transaction. Callers defer tx.Rollback() and commit
// explicitly, the same pattern on every mutating path.
func (db *DB) Beginx() (*sqlx.Tx, error) {
	return db.conn.Beginx()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS owners (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		credits INTEGER NOT NULL DEFAULT 0,
		banked INTEGER NOT NULL DEFAULT 0,
		shards INTEGER NOT NULL DEFAULT 0,
		workers INTEGER NOT NULL DEFAULT 0,
		soldiers INTEGER NOT NULL DEFAULT 0,
		guards INTEGER NOT NULL DEFAULT 0,
		sentries INTEGER NOT NULL DEFAULT 0,
		spies INTEGER NOT NULL DEFAULT 0,
		untrained INTEGER NOT NULL DEFAULT 0,
		tier_fortification INTEGER NOT NULL DEFAULT 0,
		tier_armory INTEGER NOT NULL DEFAULT 0,
		tier_offense INTEGER NOT NULL DEFAULT 0,
		tier_defense INTEGER NOT NULL DEFAULT 0,
		tier_economy INTEGER NOT NULL DEFAULT 0,
		tier_population INTEGER NOT NULL DEFAULT 0,
		stat_strength INTEGER NOT NULL DEFAULT 0,
		stat_constitution INTEGER NOT NULL DEFAULT 0,
		stat_wisdom INTEGER NOT NULL DEFAULT 0,
		stat_dexterity INTEGER NOT NULL DEFAULT 0,
		stat_charisma INTEGER NOT NULL DEFAULT 0,
		experience INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		level_points INTEGER NOT NULL DEFAULT 0,
		action_turns INTEGER NOT NULL DEFAULT 0,
		last_accrued_at TIMESTAMP NOT NULL,
		alliance_id INTEGER,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS structure_health (
		owner_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		health INTEGER NOT NULL DEFAULT 100,
		locked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_id, category)
	);

	CREATE TABLE IF NOT EXISTS alliance_structures (
		alliance_id INTEGER NOT NULL,
		structure_key TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (alliance_id, structure_key)
	);

	CREATE TABLE IF NOT EXISTS equipment (
		owner_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		tier INTEGER NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_id, category, tier)
	);

	CREATE TABLE IF NOT EXISTS pending_releases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		unit_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		available_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS encounters (
		id TEXT PRIMARY KEY,
		initiator_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		mission TEXT NOT NULL,
		success INTEGER NOT NULL,
		attack_power INTEGER NOT NULL,
		defense_power INTEGER NOT NULL,
		turns_spent INTEGER NOT NULL,
		units_lost INTEGER NOT NULL DEFAULT 0,
		structure_hit TEXT NOT NULL DEFAULT '',
		damage INTEGER NOT NULL DEFAULT 0,
		loot_factor REAL NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vault_state (
		owner_id INTEGER PRIMARY KEY,
		active_units INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		event TEXT NOT NULL,
		amount INTEGER NOT NULL,
		on_hand_before INTEGER NOT NULL,
		banked_before INTEGER NOT NULL,
		on_hand_after INTEGER NOT NULL,
		banked_after INTEGER NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_owner ON pending_releases(owner_id, available_at);
	CREATE INDEX IF NOT EXISTS idx_enc_pair ON encounters(initiator_id, target_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_enc_initiator ON encounters(initiator_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_owner ON audit_log(owner_id, created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}
