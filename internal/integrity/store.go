// Package integrity maintains per-owner, per-category structure health.
// Health runs 0–100; hitting zero downgrades the owning upgrade tier by
// one step and locks the row until an external repair.
package integrity

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

// Store reads and mutates structure health rows.
type Store struct {
	db  *persistence.DB
	cfg config.Integrity
}

// NewStore creates an integrity store.
func NewStore(db *persistence.DB, cfg config.Integrity) *Store {
	return &Store{db: db, cfg: cfg}
}

// Multiplier returns the production multiplier for a category. A
// missing row means the owner has never had a structure there and
// produces at full rate.
func (s *Store) Multiplier(ownerID int64, cat game.Category) float64 {
	return s.MultiplierIn(s.db.Conn(), ownerID, cat)
}

// MultiplierIn is Multiplier under an explicit executor, for callers
// already inside a transaction.
func (s *Store) MultiplierIn(q sqlx.Ext, ownerID int64, cat game.Category) float64 {
	row, err := persistence.StructureHealthRow(q, ownerID, cat)
	if err != nil {
		return 1.0
	}
	m := float64(row.Health) / 100
	if m < s.cfg.MultiplierFloor {
		return s.cfg.MultiplierFloor
	}
	return m
}

// EnsureRow lazily creates the health row at 100 the first time an
// owner's tier in a category becomes positive. Existing rows are left
// untouched.
func (s *Store) EnsureRow(q sqlx.Ext, ownerID int64, cat game.Category) error {
	_, err := persistence.StructureHealthRow(q, ownerID, cat)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ensure health row: %w", err)
	}
	return persistence.UpsertStructureHealth(q, &game.StructureHealth{
		OwnerID: ownerID, Category: cat, Health: 100,
	})
}

// DamageResult reports what one damage application did.
type DamageResult struct {
	Health     int  `json:"health"`
	Locked     bool `json:"locked"`
	Downgraded bool `json:"downgraded"` // tier stepped down this call
	TierAfter  int  `json:"tier_after"`
}

// ApplyDamage reduces a category's health by pct points inside the
// caller's transaction. Damage to a locked row is a no-op. When health
// reaches zero the owner's tier for that category steps down by one
// (never below zero), health pins to 0 and the row locks.
func (s *Store) ApplyDamage(tx *sqlx.Tx, owner *game.Owner, cat game.Category, pct int) (DamageResult, error) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	row, err := persistence.StructureHealthRow(tx, owner.ID, cat)
	if errors.Is(err, sql.ErrNoRows) {
		row = &game.StructureHealth{OwnerID: owner.ID, Category: cat, Health: 100}
	} else if err != nil {
		return DamageResult{}, fmt.Errorf("load health row: %w", err)
	}

	if row.Locked {
		return DamageResult{Health: row.Health, Locked: true, TierAfter: owner.Tier(cat)}, nil
	}

	newHealth := row.Health - pct
	if newHealth > 0 {
		row.Health = newHealth
		if err := persistence.UpsertStructureHealth(tx, row); err != nil {
			return DamageResult{}, err
		}
		return DamageResult{Health: newHealth, TierAfter: owner.Tier(cat)}, nil
	}

	// Destruction: pin to zero, lock, and step the tier down once.
	row.Health = 0
	row.Locked = true
	if err := persistence.UpsertStructureHealth(tx, row); err != nil {
		return DamageResult{}, err
	}
	owner.SetTier(cat, owner.Tier(cat)-1)
	if err := persistence.SaveOwner(tx, owner); err != nil {
		return DamageResult{}, err
	}
	return DamageResult{Health: 0, Locked: true, Downgraded: true, TierAfter: owner.Tier(cat)}, nil
}

// Repair resets health and clears the lock. Invoked by the external
// repair action, never by the gameplay paths in this module.
func (s *Store) Repair(ownerID int64, cat game.Category, health int) error {
	if health < 1 {
		health = 1
	}
	if health > 100 {
		health = 100
	}
	return persistence.UpsertStructureHealth(s.db.Conn(), &game.StructureHealth{
		OwnerID: ownerID, Category: cat, Health: health,
	})
}
