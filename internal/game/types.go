// Package game defines the persistent domain model for the Ironhold core:
// owners, units, upgrade tiers, structure health, vault state, and the
// encounter log.
package game

import (
	"time"
)

// UnitType identifies one of the trainable unit pools.
type UnitType string

const (
	UnitWorker  UnitType = "worker"
	UnitSoldier UnitType = "soldier"
	UnitGuard   UnitType = "guard"
	UnitSentry  UnitType = "sentry"
	UnitSpy     UnitType = "spy"
)

// Category identifies an upgrade/structure category.
type Category string

const (
	CategoryFortification Category = "fortification"
	CategoryArmory        Category = "armory"
	CategoryOffense       Category = "offense"
	CategoryDefense       Category = "defense"
	CategoryEconomy       Category = "economy"
	CategoryPopulation    Category = "population"
)

// Categories lists every upgrade category in a stable order.
var Categories = []Category{
	CategoryFortification,
	CategoryArmory,
	CategoryOffense,
	CategoryDefense,
	CategoryEconomy,
	CategoryPopulation,
}

// Role selects which derived power magnitude to compute. RoleIncome
// names the worker/economy pipeline for tier and stat lookups; its
// output is a credit flow through the accrual engine, not a power.
type Role string

const (
	RoleOffense          Role = "offense"
	RoleDefense          Role = "defense"
	RoleEspionageOffense Role = "espionage-offense"
	RoleEspionageDefense Role = "espionage-defense"
	RoleIncome           Role = "income"
)

// MissionType identifies an espionage mission family.
type MissionType string

const (
	MissionIntelligence  MissionType = "intelligence"
	MissionAssassination MissionType = "assassination"
	MissionSabotage      MissionType = "sabotage"
)

// Owner is a player's top-level persistent record.
type Owner struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Credits int64  `db:"credits" json:"credits"`
	Banked  int64  `db:"banked" json:"banked"`
	Shards  int64  `db:"shards" json:"shards"` // premium currency

	Workers   int64 `db:"workers" json:"workers"`
	Soldiers  int64 `db:"soldiers" json:"soldiers"`
	Guards    int64 `db:"guards" json:"guards"`
	Sentries  int64 `db:"sentries" json:"sentries"`
	Spies     int64 `db:"spies" json:"spies"`
	Untrained int64 `db:"untrained" json:"untrained"` // citizens awaiting training

	TierFortification int `db:"tier_fortification" json:"tier_fortification"`
	TierArmory        int `db:"tier_armory" json:"tier_armory"`
	TierOffense       int `db:"tier_offense" json:"tier_offense"`
	TierDefense       int `db:"tier_defense" json:"tier_defense"`
	TierEconomy       int `db:"tier_economy" json:"tier_economy"`
	TierPopulation    int `db:"tier_population" json:"tier_population"`

	StatStrength     int `db:"stat_strength" json:"stat_strength"`
	StatConstitution int `db:"stat_constitution" json:"stat_constitution"`
	StatWisdom       int `db:"stat_wisdom" json:"stat_wisdom"`
	StatDexterity    int `db:"stat_dexterity" json:"stat_dexterity"`
	StatCharisma     int `db:"stat_charisma" json:"stat_charisma"`

	Experience  int64 `db:"experience" json:"experience"`
	Level       int   `db:"level" json:"level"`
	LevelPoints int   `db:"level_points" json:"level_points"`
	ActionTurns int   `db:"action_turns" json:"action_turns"`

	LastAccruedAt time.Time `db:"last_accrued_at" json:"last_accrued_at"`
	AllianceID    *int64    `db:"alliance_id" json:"alliance_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// UnitCount returns the active count for a unit type.
func (o *Owner) UnitCount(u UnitType) int64 {
	switch u {
	case UnitWorker:
		return o.Workers
	case UnitSoldier:
		return o.Soldiers
	case UnitGuard:
		return o.Guards
	case UnitSentry:
		return o.Sentries
	case UnitSpy:
		return o.Spies
	}
	return 0
}

// SetUnitCount overwrites the active count for a unit type.
func (o *Owner) SetUnitCount(u UnitType, n int64) {
	if n < 0 {
		n = 0
	}
	switch u {
	case UnitWorker:
		o.Workers = n
	case UnitSoldier:
		o.Soldiers = n
	case UnitGuard:
		o.Guards = n
	case UnitSentry:
		o.Sentries = n
	case UnitSpy:
		o.Spies = n
	}
}

// Tier returns the upgrade tier for a category.
func (o *Owner) Tier(c Category) int {
	switch c {
	case CategoryFortification:
		return o.TierFortification
	case CategoryArmory:
		return o.TierArmory
	case CategoryOffense:
		return o.TierOffense
	case CategoryDefense:
		return o.TierDefense
	case CategoryEconomy:
		return o.TierEconomy
	case CategoryPopulation:
		return o.TierPopulation
	}
	return 0
}

// SetTier overwrites the upgrade tier for a category, clamped at zero.
func (o *Owner) SetTier(c Category, tier int) {
	if tier < 0 {
		tier = 0
	}
	switch c {
	case CategoryFortification:
		o.TierFortification = tier
	case CategoryArmory:
		o.TierArmory = tier
	case CategoryOffense:
		o.TierOffense = tier
	case CategoryDefense:
		o.TierDefense = tier
	case CategoryEconomy:
		o.TierEconomy = tier
	case CategoryPopulation:
		o.TierPopulation = tier
	}
}

// StructureHealth is the integrity row for one (owner, category) pair.
type StructureHealth struct {
	OwnerID  int64    `db:"owner_id" json:"owner_id"`
	Category Category `db:"category" json:"category"`
	Health   int      `db:"health" json:"health"` // 0..100
	Locked   bool     `db:"locked" json:"locked"`
}

// AllianceStructure is one upgrade structure owned by an alliance.
// Its bonus vector comes from configuration, keyed by StructureKey.
type AllianceStructure struct {
	AllianceID   int64  `db:"alliance_id" json:"alliance_id"`
	StructureKey string `db:"structure_key" json:"structure_key"`
	Level        int    `db:"level" json:"level"`
}

// AllianceBonus is the collapsed bonus set for one owner's alliance
// membership. Percent categories carry the single best contributing
// structure; additive categories sum across all structures.
type AllianceBonus struct {
	IncomePct    float64 `json:"income_pct"`
	ResourcePct  float64 `json:"resource_pct"`
	OffensePct   float64 `json:"offense_pct"`
	DefensePct   float64 `json:"defense_pct"`
	FlatCredits  int64   `json:"flat_credits"`
	FlatCitizens int64   `json:"flat_citizens"`

	// Sources records which structure produced each percent bonus,
	// keyed by "income", "resource", "offense", "defense".
	Sources map[string]string `json:"sources,omitempty"`
}

// Equipment is an owner's stock of one equipment tier in one combat
// category.
type Equipment struct {
	OwnerID  int64  `db:"owner_id" json:"owner_id"`
	Category string `db:"category" json:"category"` // attack, defense, spy, sentry
	Tier     int    `db:"tier" json:"tier"`
	Quantity int64  `db:"quantity" json:"quantity"`
}

// PendingUnitRelease holds units stunned out of active duty until a
// timer elapses, after which they rejoin the untrained pool.
type PendingUnitRelease struct {
	ID          int64     `db:"id" json:"id"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	UnitType    UnitType  `db:"unit_type" json:"unit_type"`
	Quantity    int64     `db:"quantity" json:"quantity"`
	AvailableAt time.Time `db:"available_at" json:"available_at"`
}

// EncounterRecord is one immutable row of the encounter log.
type EncounterRecord struct {
	ID           string      `db:"id" json:"id"`
	InitiatorID  int64       `db:"initiator_id" json:"initiator_id"`
	TargetID     int64       `db:"target_id" json:"target_id"`
	Mission      MissionType `db:"mission" json:"mission"`
	Success      bool        `db:"success" json:"success"`
	AttackPower  int64       `db:"attack_power" json:"attack_power"`
	DefensePower int64       `db:"defense_power" json:"defense_power"`
	TurnsSpent   int         `db:"turns_spent" json:"turns_spent"`
	UnitsLost    int64       `db:"units_lost" json:"units_lost"`
	StructureHit string      `db:"structure_hit" json:"structure_hit,omitempty"`
	Damage       int         `db:"damage" json:"damage"`
	LootFactor   float64     `db:"loot_factor" json:"loot_factor"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// VaultState is the active resource-capacity ladder for one owner.
type VaultState struct {
	OwnerID     int64 `db:"owner_id" json:"owner_id"`
	ActiveUnits int   `db:"active_units" json:"active_units"` // never below 1
}

// Balances is an on-hand/banked snapshot used by the audit ledger.
type Balances struct {
	OnHand int64 `json:"on_hand"`
	Banked int64 `json:"banked"`
}

// BalancesOf snapshots an owner's credit balances.
func BalancesOf(o *Owner) Balances {
	return Balances{OnHand: o.Credits, Banked: o.Banked}
}
