package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/game"
)

// Row operations take sqlx.Ext so they compose under either the raw
// connection or an open transaction.

const ownerColumns = `id, name, credits, banked, shards,
	workers, soldiers, guards, sentries, spies, untrained,
	tier_fortification, tier_armory, tier_offense, tier_defense, tier_economy, tier_population,
	stat_strength, stat_constitution, stat_wisdom, stat_dexterity, stat_charisma,
	experience, level, level_points, action_turns,
	last_accrued_at, alliance_id, created_at`

// OwnerByID loads one owner row.
func OwnerByID(q sqlx.Ext, id int64) (*game.Owner, error) {
	var o game.Owner
	err := sqlx.Get(q, &o, `SELECT `+ownerColumns+` FROM owners WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrOwnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load owner %d: %w", id, err)
	}
	return &o, nil
}

// InsertOwner creates a new owner row.
func InsertOwner(q sqlx.Ext, o *game.Owner) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.LastAccruedAt.IsZero() {
		o.LastAccruedAt = o.CreatedAt
	}
	if o.Level < 1 {
		o.Level = 1
	}
	_, err := sqlx.NamedExec(q, `INSERT INTO owners (`+ownerColumns+`) VALUES (
		:id, :name, :credits, :banked, :shards,
		:workers, :soldiers, :guards, :sentries, :spies, :untrained,
		:tier_fortification, :tier_armory, :tier_offense, :tier_defense, :tier_economy, :tier_population,
		:stat_strength, :stat_constitution, :stat_wisdom, :stat_dexterity, :stat_charisma,
		:experience, :level, :level_points, :action_turns,
		:last_accrued_at, :alliance_id, :created_at)`, o)
	if err != nil {
		return fmt.Errorf("insert owner %d: %w", o.ID, err)
	}
	// Every owner starts with the free first vault unit.
	if _, err := q.Exec(`INSERT OR IGNORE INTO vault_state (owner_id, active_units) VALUES (?, 1)`, o.ID); err != nil {
		return fmt.Errorf("seed vault for owner %d: %w", o.ID, err)
	}
	return nil
}

// SaveOwner writes every mutable owner column back.
func SaveOwner(q sqlx.Ext, o *game.Owner) error {
	_, err := sqlx.NamedExec(q, `UPDATE owners SET
		name = :name, credits = :credits, banked = :banked, shards = :shards,
		workers = :workers, soldiers = :soldiers, guards = :guards,
		sentries = :sentries, spies = :spies, untrained = :untrained,
		tier_fortification = :tier_fortification, tier_armory = :tier_armory,
		tier_offense = :tier_offense, tier_defense = :tier_defense,
		tier_economy = :tier_economy, tier_population = :tier_population,
		stat_strength = :stat_strength, stat_constitution = :stat_constitution,
		stat_wisdom = :stat_wisdom, stat_dexterity = :stat_dexterity,
		stat_charisma = :stat_charisma,
		experience = :experience, level = :level, level_points = :level_points,
		action_turns = :action_turns,
		last_accrued_at = :last_accrued_at, alliance_id = :alliance_id
		WHERE id = :id`, o)
	if err != nil {
		return fmt.Errorf("save owner %d: %w", o.ID, err)
	}
	return nil
}

// ListOwnerIDs returns every owner ID in ascending order.
func ListOwnerIDs(q sqlx.Ext) ([]int64, error) {
	var ids []int64
	if err := sqlx.Select(q, &ids, `SELECT id FROM owners ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return ids, nil
}

// EquipmentByOwner returns an owner's stock in one equipment category.
func EquipmentByOwner(q sqlx.Ext, ownerID int64, category string) ([]game.Equipment, error) {
	var items []game.Equipment
	err := sqlx.Select(q, &items,
		`SELECT owner_id, category, tier, quantity FROM equipment
		 WHERE owner_id = ? AND category = ? AND quantity > 0`,
		ownerID, category)
	if err != nil {
		return nil, fmt.Errorf("load equipment owner %d: %w", ownerID, err)
	}
	return items, nil
}

// UpsertEquipment sets an owner's stock for one category/tier.
func UpsertEquipment(q sqlx.Ext, e game.Equipment) error {
	_, err := q.Exec(`INSERT INTO equipment (owner_id, category, tier, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, category, tier) DO UPDATE SET quantity = excluded.quantity`,
		e.OwnerID, e.Category, e.Tier, e.Quantity)
	if err != nil {
		return fmt.Errorf("upsert equipment: %w", err)
	}
	return nil
}

// AllianceStructures returns every structure an alliance owns.
func AllianceStructures(q sqlx.Ext, allianceID int64) ([]game.AllianceStructure, error) {
	var rows []game.AllianceStructure
	err := sqlx.Select(q, &rows,
		`SELECT alliance_id, structure_key, level FROM alliance_structures
		 WHERE alliance_id = ? ORDER BY structure_key`, allianceID)
	if err != nil {
		return nil, fmt.Errorf("load alliance %d structures: %w", allianceID, err)
	}
	return rows, nil
}

// UpsertAllianceStructure sets one alliance structure level. Used by
// the alliance-management collaborator and tests; the core only reads.
func UpsertAllianceStructure(q sqlx.Ext, s game.AllianceStructure) error {
	_, err := q.Exec(`INSERT INTO alliance_structures (alliance_id, structure_key, level)
		VALUES (?, ?, ?)
		ON CONFLICT(alliance_id, structure_key) DO UPDATE SET level = excluded.level`,
		s.AllianceID, s.StructureKey, s.Level)
	if err != nil {
		return fmt.Errorf("upsert alliance structure: %w", err)
	}
	return nil
}
