// Package accrual converts elapsed real time into discrete turns and
// applies each turn's income, citizen growth, action-turn grant and
// pending unit releases exactly once per owner.
package accrual

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/ledger"
	"github.com/talgya/ironhold/internal/persistence"
	"github.com/talgya/ironhold/internal/vault"
)

// BonusSource supplies alliance bonuses (bonus.Aggregator in
// production, a zero double in tests).
type BonusSource interface {
	ForOwner(allianceID *int64) game.AllianceBonus
}

// IntegritySource supplies structure multipliers and lazy row creation
// (integrity.Store in production).
type IntegritySource interface {
	MultiplierIn(q sqlx.Ext, ownerID int64, cat game.Category) float64
	EnsureRow(q sqlx.Ext, ownerID int64, cat game.Category) error
}

// Engine applies turn accrual. Safe to invoke at any time from both
// the periodic scheduler and page-triggered catch-up calls: turns are
// recomputed from persisted state, so a race applies nothing twice.
type Engine struct {
	cfg       config.Config
	db        *persistence.DB
	locks     *persistence.LockRegistry
	bonuses   BonusSource
	integrity IntegritySource
	vaults    *vault.Manager
	audit     *ledger.Logger

	// now is the clock; tests pin it.
	now func() time.Time
}

// NewEngine creates a turn accrual engine.
func NewEngine(cfg config.Config, db *persistence.DB, locks *persistence.LockRegistry,
	bonuses BonusSource, integrity IntegritySource, vaults *vault.Manager, audit *ledger.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		db:        db,
		locks:     locks,
		bonuses:   bonuses,
		integrity: integrity,
		vaults:    vaults,
		audit:     audit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// IncomeBreakdown is the single income computation every consumer
// (accrual and UI alike) sees. Values describe one whole turn.
type IncomeBreakdown struct {
	BaseIncome        int64   `json:"base_income"`
	WealthMult        float64 `json:"wealth_mult"`
	EconomyMult       float64 `json:"economy_mult"`
	AllianceIncomeMult   float64 `json:"alliance_income_mult"`
	AllianceResourceMult float64 `json:"alliance_resource_mult"`
	FlatCredits       int64   `json:"flat_credits"`
	TroopUpkeep       int64   `json:"troop_upkeep"`
	VaultUpkeep       int64   `json:"vault_upkeep"`
	VaultDataMissing  bool    `json:"vault_data_missing,omitempty"`
	NetPerTurn        int64   `json:"net_per_turn"`
	CitizensPerTurn   int64   `json:"citizens_per_turn"`
}

// Result reports what one catch-up call applied.
type Result struct {
	Turns         int   `json:"turns"`
	CreditsDelta  int64 `json:"credits_delta"`
	CitizensDelta int64 `json:"citizens_delta"`
	UnitsReleased int64 `json:"units_released"`
	VaultContract int   `json:"vault_contracted"`
}

// perTurn computes one turn's breakdown from loaded state. vaultBill
// of -1 flags missing vault data.
func (e *Engine) perTurn(q sqlx.Ext, o *game.Owner, ab game.AllianceBonus, vaultBill int64) IncomeBreakdown {
	bd := IncomeBreakdown{
		BaseIncome:           e.cfg.Turn.BaseIncome + o.Workers*e.cfg.Turn.WorkerPay,
		WealthMult:           1 + float64(o.StatWisdom)*e.cfg.Turn.StatPctPerPoint,
		AllianceIncomeMult:   1 + ab.IncomePct,
		AllianceResourceMult: 1 + ab.ResourcePct,
		FlatCredits:          ab.FlatCredits,
	}

	econPct := e.cfg.Upgrades.CumulativePct(game.CategoryEconomy, o.TierEconomy)
	econInteg := e.integrity.MultiplierIn(q, o.ID, game.CategoryEconomy)
	bd.EconomyMult = (1 + econPct) * econInteg

	u := e.cfg.Units
	bd.TroopUpkeep = o.Soldiers*u.SoldierUpkeep + o.Guards*u.GuardUpkeep +
		o.Sentries*u.SentryUpkeep + o.Spies*u.SpyUpkeep

	if vaultBill < 0 {
		bd.VaultDataMissing = true
		vaultBill = 0
	}
	bd.VaultUpkeep = vaultBill

	gross := int64(math.Floor(float64(bd.BaseIncome) * bd.WealthMult * bd.EconomyMult *
		bd.AllianceIncomeMult * bd.AllianceResourceMult))
	bd.NetPerTurn = gross + bd.FlatCredits - bd.TroopUpkeep - bd.VaultUpkeep

	popPct := e.cfg.Upgrades.CumulativePct(game.CategoryPopulation, o.TierPopulation)
	popInteg := e.integrity.MultiplierIn(q, o.ID, game.CategoryPopulation)
	bd.CitizensPerTurn = int64(math.Floor(float64(e.cfg.Turn.BaseCitizens)*(1+popPct)*popInteg)) + ab.FlatCitizens

	return bd
}

// IncomeSummary is the read-only income entry point for the
// presentation layer. It shares perTurn with CatchUp, so dashboard and
// accrual values cannot diverge.
func (e *Engine) IncomeSummary(ownerID int64) (*IncomeBreakdown, error) {
	conn := e.db.Conn()
	o, err := persistence.OwnerByID(conn, ownerID)
	if err != nil {
		return nil, err
	}

	vaultBill := int64(-1)
	if vs, err := persistence.VaultByOwner(conn, ownerID); err == nil {
		vaultBill = e.vaults.UpkeepBill(vs.ActiveUnits)
	}

	bd := e.perTurn(conn, o, e.bonuses.ForOwner(o.AllianceID), vaultBill)
	return &bd, nil
}

// CatchUp applies every whole elapsed turn for one owner, plus any due
// unit releases, in one transaction. Idempotent: zero elapsed turns
// and no due releases change nothing.
func (e *Engine) CatchUp(ownerID int64) (*Result, error) {
	unlock := e.locks.Lock(ownerID)
	defer unlock()

	tx, err := e.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("%w: begin catch-up: %v", game.ErrConsistency, err)
	}
	defer tx.Rollback()

	o, err := persistence.OwnerByID(tx, ownerID)
	if err != nil {
		return nil, err
	}
	before := game.BalancesOf(o)

	now := e.now()
	interval := e.cfg.Turn.Interval()
	turns := 0
	if interval > 0 {
		turns = int(now.Sub(o.LastAccruedAt) / interval)
	}

	res := &Result{Turns: turns}

	// Due stun releases return to the untrained pool in the same
	// atomic step, whether or not a turn elapsed.
	due, err := persistence.DuePendingReleases(tx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if len(due) > 0 {
		ids := make([]int64, 0, len(due))
		for _, r := range due {
			o.Untrained += r.Quantity
			res.UnitsReleased += r.Quantity
			ids = append(ids, r.ID)
		}
		if err := persistence.DeletePendingReleases(tx, ids); err != nil {
			return nil, err
		}
	}

	var vs *game.VaultState
	if turns > 0 {
		for _, cat := range game.Categories {
			if o.Tier(cat) > 0 {
				if err := e.integrity.EnsureRow(tx, ownerID, cat); err != nil {
					return nil, err
				}
			}
		}

		vaultBill := int64(-1)
		vs, err = persistence.VaultByOwner(tx, ownerID)
		switch {
		case err == nil:
			var bill int64
			bill, res.VaultContract = e.vaults.Settle(o, vs, turns)
			vaultBill = bill
		case errors.Is(err, game.ErrNoVaultData):
			slog.Debug("vault data missing during accrual", "owner", ownerID)
		default:
			return nil, err
		}

		bd := e.perTurn(tx, o, e.bonuses.ForOwner(o.AllianceID), vaultBill)

		res.CreditsDelta = bd.NetPerTurn * int64(turns)
		o.Credits += res.CreditsDelta
		if o.Credits < 0 {
			o.Credits = 0
		}

		res.CitizensDelta = bd.CitizensPerTurn * int64(turns)
		o.Untrained += res.CitizensDelta

		o.ActionTurns += e.cfg.Turn.ActionTurns * turns
		if o.ActionTurns > e.cfg.Turn.MaxActionTurns {
			o.ActionTurns = e.cfg.Turn.MaxActionTurns
		}

		// Advance by whole turns only; the remainder keeps accruing.
		o.LastAccruedAt = o.LastAccruedAt.Add(time.Duration(turns) * interval)
	}

	if turns == 0 && res.UnitsReleased == 0 {
		return res, nil
	}

	if err := persistence.SaveOwner(tx, o); err != nil {
		return nil, err
	}
	if vs != nil && res.VaultContract > 0 {
		if err := persistence.SaveVault(tx, vs); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit catch-up: %v", game.ErrConsistency, err)
	}

	if turns > 0 {
		e.audit.Log(ownerID, "turn_income", res.CreditsDelta, before, game.BalancesOf(o),
			map[string]any{"turns": turns, "citizens": res.CitizensDelta})
	}
	return res, nil
}

// RunAll catches up every owner. Failures are per-owner: one rolled
// back owner never blocks the rest.
func (e *Engine) RunAll() {
	ids, err := persistence.ListOwnerIDs(e.db.Conn())
	if err != nil {
		slog.Error("accrual sweep: list owners failed", "error", err)
		return
	}

	applied, failed := 0, 0
	for _, id := range ids {
		res, err := e.CatchUp(id)
		if err != nil {
			failed++
			slog.Warn("accrual failed for owner", "owner", id, "error", err)
			continue
		}
		if res.Turns > 0 || res.UnitsReleased > 0 {
			applied++
		}
	}
	slog.Info("accrual sweep complete", "owners", len(ids), "applied", applied, "failed", failed)
}
