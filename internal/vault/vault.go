// Package vault manages the per-owner resource-capacity ladder: the
// first unit is free, later units carry a geometrically growing price
// and a recurring upkeep that can force capacity back down.
package vault

import (
	"fmt"
	"math"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/ledger"
	"github.com/talgya/ironhold/internal/persistence"
)

// Manager runs vault purchases and upkeep settlement.
type Manager struct {
	cfg    config.Vault
	db     *persistence.DB
	locks  *persistence.LockRegistry
	audit  *ledger.Logger
}

// NewManager creates a vault manager.
func NewManager(cfg config.Vault, db *persistence.DB, locks *persistence.LockRegistry, audit *ledger.Logger) *Manager {
	return &Manager{cfg: cfg, db: db, locks: locks, audit: audit}
}

// Capacity returns total storage for a unit count. Callers must never
// ask about fewer than one unit; absent vault data is an error upstream,
// not a zero here.
func (m *Manager) Capacity(activeUnits int) int64 {
	if activeUnits < 1 {
		activeUnits = 1
	}
	return int64(activeUnits) * m.cfg.PerUnitCapacity
}

// NextCost prices vault unit n. The first unit is free, the second
// costs the base price, and each unit after grows geometrically,
// floored to whole credits.
func (m *Manager) NextCost(n int) int64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return m.cfg.UnitPrice
	default:
		return int64(math.Floor(float64(m.cfg.UnitPrice) * math.Pow(1+m.cfg.GrowthRate, float64(n-2))))
	}
}

// UpkeepBill returns the recurring bill for a unit count; the first
// unit is always free.
func (m *Manager) UpkeepBill(activeUnits int) int64 {
	if activeUnits <= 1 {
		return 0
	}
	return int64(activeUnits-1) * m.cfg.PerUnitUpkeep
}

// Purchase buys the owner's next vault unit, debiting banked credits
// first, then on-hand. Fails without mutation when the combined
// balance cannot cover the cost.
func (m *Manager) Purchase(ownerID int64) (*game.VaultState, error) {
	unlock := m.locks.Lock(ownerID)
	defer unlock()

	tx, err := m.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("%w: begin purchase: %v", game.ErrConsistency, err)
	}
	defer tx.Rollback()

	o, err := persistence.OwnerByID(tx, ownerID)
	if err != nil {
		return nil, err
	}
	vs, err := persistence.VaultByOwner(tx, ownerID)
	if err != nil {
		return nil, err
	}

	before := game.BalancesOf(o)
	cost := m.NextCost(vs.ActiveUnits + 1)
	if o.Banked+o.Credits < cost {
		return nil, game.ErrInsufficientFunds
	}

	debitBankedFirst(o, cost)
	vs.ActiveUnits++

	if err := persistence.SaveOwner(tx, o); err != nil {
		return nil, err
	}
	if err := persistence.SaveVault(tx, vs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit purchase: %v", game.ErrConsistency, err)
	}

	m.audit.Log(ownerID, "vault_purchase", -cost, before, game.BalancesOf(o),
		map[string]any{"active_units": vs.ActiveUnits})
	return vs, nil
}

// Settle computes the per-turn upkeep bill the owner can actually
// carry across turns consecutive billing cycles, contracting from the
// highest-numbered unit down until turns bills fit the combined
// balance or only the free first unit remains. It mutates only
// vs.ActiveUnits; debiting is the caller's job so the bill can fold
// into each turn's maintenance exactly once.
func (m *Manager) Settle(o *game.Owner, vs *game.VaultState, turns int) (bill int64, contracted int) {
	if turns < 1 {
		turns = 1
	}
	for vs.ActiveUnits > 1 {
		bill = m.UpkeepBill(vs.ActiveUnits)
		if o.Banked+o.Credits >= bill*int64(turns) {
			return bill, contracted
		}
		vs.ActiveUnits--
		contracted++
	}
	return 0, contracted
}

// PayUpkeep settles and debits one owner's vault upkeep as a
// standalone operation, with an audit snapshot.
func (m *Manager) PayUpkeep(ownerID int64) (int64, error) {
	unlock := m.locks.Lock(ownerID)
	defer unlock()

	tx, err := m.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("%w: begin upkeep: %v", game.ErrConsistency, err)
	}
	defer tx.Rollback()

	o, err := persistence.OwnerByID(tx, ownerID)
	if err != nil {
		return 0, err
	}
	vs, err := persistence.VaultByOwner(tx, ownerID)
	if err != nil {
		return 0, err
	}

	before := game.BalancesOf(o)
	bill, contracted := m.Settle(o, vs, 1)
	debitBankedFirst(o, bill)

	if err := persistence.SaveOwner(tx, o); err != nil {
		return 0, err
	}
	if err := persistence.SaveVault(tx, vs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit upkeep: %v", game.ErrConsistency, err)
	}

	m.audit.Log(ownerID, "vault_upkeep", -bill, before, game.BalancesOf(o),
		map[string]any{"active_units": vs.ActiveUnits, "contracted": contracted})
	return bill, nil
}

// debitBankedFirst takes amount from banked credits, spilling the
// remainder to on-hand.
func debitBankedFirst(o *game.Owner, amount int64) {
	if amount <= 0 {
		return
	}
	if o.Banked >= amount {
		o.Banked -= amount
		return
	}
	amount -= o.Banked
	o.Banked = 0
	o.Credits -= amount
	if o.Credits < 0 {
		o.Credits = 0
	}
}
