package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/game"
)

// StructureHealthRow loads the integrity row for one (owner, category)
// pair. Returns sql.ErrNoRows unwrapped so callers can treat absence as
// "no structure yet".
func StructureHealthRow(q sqlx.Ext, ownerID int64, cat game.Category) (*game.StructureHealth, error) {
	var sh game.StructureHealth
	err := sqlx.Get(q, &sh,
		`SELECT owner_id, category, health, locked FROM structure_health
		 WHERE owner_id = ? AND category = ?`, ownerID, cat)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// StructureHealthAll returns every integrity row for an owner.
func StructureHealthAll(q sqlx.Ext, ownerID int64) ([]game.StructureHealth, error) {
	var rows []game.StructureHealth
	err := sqlx.Select(q, &rows,
		`SELECT owner_id, category, health, locked FROM structure_health
		 WHERE owner_id = ? ORDER BY category`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load structure health owner %d: %w", ownerID, err)
	}
	return rows, nil
}

// UpsertStructureHealth writes one integrity row.
func UpsertStructureHealth(q sqlx.Ext, sh *game.StructureHealth) error {
	locked := 0
	if sh.Locked {
		locked = 1
	}
	_, err := q.Exec(`INSERT INTO structure_health (owner_id, category, health, locked)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, category) DO UPDATE SET health = excluded.health, locked = excluded.locked`,
		sh.OwnerID, sh.Category, sh.Health, locked)
	if err != nil {
		return fmt.Errorf("upsert structure health: %w", err)
	}
	return nil
}

// InsertPendingRelease queues units for return to the untrained pool.
func InsertPendingRelease(q sqlx.Ext, r *game.PendingUnitRelease) error {
	_, err := q.Exec(`INSERT INTO pending_releases (owner_id, unit_type, quantity, available_at)
		VALUES (?, ?, ?, ?)`,
		r.OwnerID, r.UnitType, r.Quantity, r.AvailableAt)
	if err != nil {
		return fmt.Errorf("insert pending release: %w", err)
	}
	return nil
}

// DuePendingReleases returns every release row for an owner whose timer
// has elapsed.
func DuePendingReleases(q sqlx.Ext, ownerID int64, now time.Time) ([]game.PendingUnitRelease, error) {
	var rows []game.PendingUnitRelease
	err := sqlx.Select(q, &rows,
		`SELECT id, owner_id, unit_type, quantity, available_at FROM pending_releases
		 WHERE owner_id = ? AND available_at <= ? ORDER BY id`, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("load due releases owner %d: %w", ownerID, err)
	}
	return rows, nil
}

// DeletePendingReleases removes consumed release rows by ID.
func DeletePendingReleases(q sqlx.Ext, ids []int64) error {
	for _, id := range ids {
		if _, err := q.Exec(`DELETE FROM pending_releases WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete pending release %d: %w", id, err)
		}
	}
	return nil
}

// PendingReleasesByOwner returns every outstanding release row.
func PendingReleasesByOwner(q sqlx.Ext, ownerID int64) ([]game.PendingUnitRelease, error) {
	var rows []game.PendingUnitRelease
	err := sqlx.Select(q, &rows,
		`SELECT id, owner_id, unit_type, quantity, available_at FROM pending_releases
		 WHERE owner_id = ? ORDER BY available_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load releases owner %d: %w", ownerID, err)
	}
	return rows, nil
}

// InsertEncounter appends one row to the encounter log.
func InsertEncounter(q sqlx.Ext, e *game.EncounterRecord) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := q.Exec(`INSERT INTO encounters
		(id, initiator_id, target_id, mission, success, attack_power, defense_power,
		 turns_spent, units_lost, structure_hit, damage, loot_factor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InitiatorID, e.TargetID, e.Mission, success, e.AttackPower, e.DefensePower,
		e.TurnsSpent, e.UnitsLost, e.StructureHit, e.Damage, e.LootFactor, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

// CountPairEncounters counts encounters from initiator against target
// since the window start.
func CountPairEncounters(q sqlx.Ext, initiatorID, targetID int64, since time.Time) (int, error) {
	var n int
	err := sqlx.Get(q, &n,
		`SELECT COUNT(*) FROM encounters
		 WHERE initiator_id = ? AND target_id = ? AND created_at >= ?`,
		initiatorID, targetID, since)
	if err != nil {
		return 0, fmt.Errorf("count pair encounters: %w", err)
	}
	return n, nil
}

// CountInitiatorEncounters counts every encounter an initiator started
// since the window start, regardless of target.
func CountInitiatorEncounters(q sqlx.Ext, initiatorID int64, since time.Time) (int, error) {
	var n int
	err := sqlx.Get(q, &n,
		`SELECT COUNT(*) FROM encounters WHERE initiator_id = ? AND created_at >= ?`,
		initiatorID, since)
	if err != nil {
		return 0, fmt.Errorf("count initiator encounters: %w", err)
	}
	return n, nil
}

// RecentEncounters returns the newest rows of the encounter log.
func RecentEncounters(q sqlx.Ext, limit int) ([]game.EncounterRecord, error) {
	var rows []game.EncounterRecord
	err := sqlx.Select(q, &rows,
		`SELECT id, initiator_id, target_id, mission, success, attack_power, defense_power,
		        turns_spent, units_lost, structure_hit, damage, loot_factor, created_at
		 FROM encounters ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent encounters: %w", err)
	}
	return rows, nil
}

// VaultByOwner loads one owner's vault row. Absent data maps to
// ErrNoVaultData; it never defaults to free capacity.
func VaultByOwner(q sqlx.Ext, ownerID int64) (*game.VaultState, error) {
	var vs game.VaultState
	err := sqlx.Get(q, &vs,
		`SELECT owner_id, active_units FROM vault_state WHERE owner_id = ?`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrNoVaultData
	}
	if err != nil {
		return nil, fmt.Errorf("load vault owner %d: %w", ownerID, err)
	}
	return &vs, nil
}

// SaveVault writes one vault row.
func SaveVault(q sqlx.Ext, vs *game.VaultState) error {
	_, err := q.Exec(`INSERT INTO vault_state (owner_id, active_units) VALUES (?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET active_units = excluded.active_units`,
		vs.OwnerID, vs.ActiveUnits)
	if err != nil {
		return fmt.Errorf("save vault owner %d: %w", vs.OwnerID, err)
	}
	return nil
}
