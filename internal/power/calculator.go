// Package power derives an owner's combat and espionage magnitudes from
// unit counts, equipment, stat points, upgrade tiers, alliance bonuses
// and structure integrity.
package power

import (
	"fmt"
	"math"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

// BonusSource supplies alliance bonuses. The production implementation
// is bonus.Aggregator; tests supply a neutral zero-bonus double.
type BonusSource interface {
	ForOwner(allianceID *int64) game.AllianceBonus
}

// IntegritySource supplies the structure integrity multiplier. The
// production implementation is integrity.Store; tests supply a 1.0
// double.
type IntegritySource interface {
	MultiplierIn(q sqlx.Ext, ownerID int64, cat game.Category) float64
}

// Calculator computes derived power magnitudes. Collaborators are
// injected at construction and mandatory.
type Calculator struct {
	cfg       config.Config
	bonuses   BonusSource
	integrity IntegritySource
}

// NewCalculator creates a power calculator.
func NewCalculator(cfg config.Config, bonuses BonusSource, integrity IntegritySource) *Calculator {
	return &Calculator{cfg: cfg, bonuses: bonuses, integrity: integrity}
}

// RoleUnit maps a role to the unit type whose count carries it.
func RoleUnit(role game.Role) game.UnitType {
	switch role {
	case game.RoleOffense:
		return game.UnitSoldier
	case game.RoleDefense:
		return game.UnitGuard
	case game.RoleEspionageOffense:
		return game.UnitSpy
	case game.RoleEspionageDefense:
		return game.UnitSentry
	}
	return game.UnitWorker
}

// equipmentCategory maps a role to its equipment category. Income has
// no equipment.
func equipmentCategory(role game.Role) string {
	switch role {
	case game.RoleOffense:
		return "attack"
	case game.RoleDefense:
		return "defense"
	case game.RoleEspionageOffense:
		return "spy"
	case game.RoleEspionageDefense:
		return "sentry"
	}
	return ""
}

// upgradeCategory maps a role to the upgrade tier category whose
// cumulative percentage applies.
func upgradeCategory(role game.Role) game.Category {
	switch role {
	case game.RoleOffense:
		return game.CategoryOffense
	case game.RoleDefense:
		return game.CategoryDefense
	case game.RoleEspionageOffense, game.RoleEspionageDefense:
		return game.CategoryArmory
	}
	return game.CategoryEconomy
}

// integrityCategory maps a role to the structure category whose health
// throttles it. Defense leans on the fortification, espionage on the
// armory.
func integrityCategory(role game.Role) game.Category {
	switch role {
	case game.RoleOffense:
		return game.CategoryOffense
	case game.RoleDefense:
		return game.CategoryFortification
	case game.RoleEspionageOffense, game.RoleEspionageDefense:
		return game.CategoryArmory
	}
	return game.CategoryEconomy
}

// statPoints returns the stat pool feeding a role.
func statPoints(o *game.Owner, role game.Role) int {
	switch role {
	case game.RoleOffense:
		return o.StatStrength
	case game.RoleDefense:
		return o.StatConstitution
	case game.RoleEspionageOffense, game.RoleEspionageDefense:
		return o.StatDexterity
	}
	return o.StatWisdom
}

func alliancePct(b game.AllianceBonus, role game.Role) float64 {
	switch role {
	case game.RoleOffense, game.RoleEspionageOffense:
		return b.OffensePct
	case game.RoleDefense, game.RoleEspionageDefense:
		return b.DefensePct
	}
	return b.IncomePct
}

// Compute derives one power magnitude for an owner. The executor lets
// mission resolution evaluate powers inside its transaction. Only the
// four combat roles have a power; income is a credit flow, computed by
// the accrual engine's income breakdown, and is rejected here.
func (c *Calculator) Compute(q sqlx.Ext, o *game.Owner, role game.Role) (int64, error) {
	if role == game.RoleIncome {
		return 0, fmt.Errorf("%w: income role has no combat power", game.ErrValidation)
	}
	var equip []game.Equipment
	if cat := equipmentCategory(role); cat != "" {
		var err error
		equip, err = persistence.EquipmentByOwner(q, o.ID, cat)
		if err != nil {
			return 0, err
		}
	}

	ab := c.bonuses.ForOwner(o.AllianceID)
	integ := c.integrity.MultiplierIn(q, o.ID, integrityCategory(role))
	return c.combine(o, role, equip, ab, integ), nil
}

// combine applies the full power formula over already-loaded inputs.
// Kept separate so tests can drive it without a store.
func (c *Calculator) combine(o *game.Owner, role game.Role, equip []game.Equipment, ab game.AllianceBonus, integ float64) int64 {
	units := o.UnitCount(RoleUnit(role))
	base := units * c.cfg.Units.BasePower(role)
	equipBonus := allocateEquipment(c.cfg.Equipment, equip, units)

	statPct := float64(statPoints(o, role)) * c.cfg.Turn.StatPctPerPoint
	upgradePct := c.cfg.Upgrades.CumulativePct(upgradeCategory(role), o.Tier(upgradeCategory(role)))
	alliPct := alliancePct(ab, role)

	raw := float64(base+equipBonus) * (1 + statPct) * (1 + upgradePct) * (1 + alliPct) * integ
	out := int64(math.Floor(raw))

	// Defensive magnitudes serve as combat denominators; never zero.
	if role == game.RoleDefense || role == game.RoleEspionageDefense {
		if out < 1 {
			out = 1
		}
	}
	if out < 0 {
		out = 0
	}
	return out
}

// allocateEquipment hands the strongest items to units first, one item
// per unit, best tier first, capped at the unit count. Ties break by
// descending strength, then ascending tier key, so the result is
// deterministic.
func allocateEquipment(cfg config.Equipment, items []game.Equipment, units int64) int64 {
	if units <= 0 || len(items) == 0 {
		return 0
	}

	sorted := make([]game.Equipment, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		si, sj := cfg.Strength(sorted[i].Tier), cfg.Strength(sorted[j].Tier)
		if si != sj {
			return si > sj
		}
		return sorted[i].Tier < sorted[j].Tier
	})

	var total int64
	remaining := units
	for _, it := range sorted {
		if remaining <= 0 {
			break
		}
		n := it.Quantity
		if n > remaining {
			n = remaining
		}
		total += n * cfg.Strength(it.Tier)
		remaining -= n
	}
	return total
}
