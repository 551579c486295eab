// Package config holds the balance and tuning configuration for the
// game core. Values are loaded once at process start and treated as
// immutable afterwards; a yaml file overlays the built-in defaults
// (file over default).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/ironhold/internal/game"
)

// Config is the full tuning set passed into engine constructors.
type Config struct {
	Turn      Turn      `yaml:"turn"`
	Units     Units     `yaml:"units"`
	Upgrades  Upgrades  `yaml:"upgrades"`
	Equipment Equipment `yaml:"equipment"`
	Alliance  Alliance  `yaml:"alliance"`
	Mission   Mission   `yaml:"mission"`
	Guard     Guard     `yaml:"guard"`
	Vault     Vault     `yaml:"vault"`
	Integrity Integrity `yaml:"integrity"`
}

// Turn controls the accrual quantum and per-turn grants.
type Turn struct {
	IntervalMinutes int   `yaml:"interval_minutes"`
	BaseIncome      int64 `yaml:"base_income"`       // flat credits per turn
	WorkerPay       int64 `yaml:"worker_pay"`        // credits per worker per turn
	BaseCitizens    int64 `yaml:"base_citizens"`     // citizen growth per turn before bonuses
	ActionTurns     int   `yaml:"action_turns"`      // action turns granted per turn
	MaxActionTurns  int   `yaml:"max_action_turns"`  // action-turn balance cap
	StatPctPerPoint float64 `yaml:"stat_pct_per_point"`
}

// Interval returns the turn quantum as a duration.
func (t Turn) Interval() time.Duration {
	return time.Duration(t.IntervalMinutes) * time.Minute
}

// Units holds base unit powers and per-turn upkeep costs.
type Units struct {
	SoldierPower int64 `yaml:"soldier_power"`
	GuardPower   int64 `yaml:"guard_power"`
	SpyPower     int64 `yaml:"spy_power"`
	SentryPower  int64 `yaml:"sentry_power"`

	SoldierUpkeep int64 `yaml:"soldier_upkeep"`
	GuardUpkeep   int64 `yaml:"guard_upkeep"`
	SentryUpkeep  int64 `yaml:"sentry_upkeep"`
	SpyUpkeep     int64 `yaml:"spy_upkeep"`
}

// BasePower returns the per-unit base power for a role. Income carries
// no base unit power; its magnitude comes from the accrual formula.
func (u Units) BasePower(role game.Role) int64 {
	switch role {
	case game.RoleOffense:
		return u.SoldierPower
	case game.RoleDefense:
		return u.GuardPower
	case game.RoleEspionageOffense:
		return u.SpyPower
	case game.RoleEspionageDefense:
		return u.SentryPower
	}
	return 0
}

// Upgrades defines the percent bonus each tier level contributes.
// Levels past the end of a slice repeat its last entry.
type Upgrades struct {
	PerLevelPct map[game.Category][]float64 `yaml:"per_level_pct"`
}

// CumulativePct sums the per-level bonuses from level 1 through tier.
func (u Upgrades) CumulativePct(c game.Category, tier int) float64 {
	levels := u.PerLevelPct[c]
	if len(levels) == 0 || tier <= 0 {
		return 0
	}
	var sum float64
	for i := 0; i < tier; i++ {
		if i < len(levels) {
			sum += levels[i]
		} else {
			sum += levels[len(levels)-1]
		}
	}
	return sum
}

// Equipment defines per-tier item strength. Index 0 is tier 1.
type Equipment struct {
	TierStrength []int64 `yaml:"tier_strength"`
}

// Strength returns the per-unit bonus of an equipment tier.
func (e Equipment) Strength(tier int) int64 {
	if tier < 1 || tier > len(e.TierStrength) {
		return 0
	}
	return e.TierStrength[tier-1]
}

// AllianceStructureDef is the typed bonus vector for one structure key,
// per level of the structure.
type AllianceStructureDef struct {
	IncomePct    float64 `yaml:"income_pct"`
	ResourcePct  float64 `yaml:"resource_pct"`
	OffensePct   float64 `yaml:"offense_pct"`
	DefensePct   float64 `yaml:"defense_pct"`
	FlatCredits  int64   `yaml:"flat_credits"`
	FlatCitizens int64   `yaml:"flat_citizens"`
}

// Alliance holds the structure bonus table and the membership stipend.
type Alliance struct {
	Stipend    int64                           `yaml:"stipend"` // flat credits per turn for any membership
	Structures map[string]AllianceStructureDef `yaml:"structures"`
}

// Mission tunes the success test and outcome magnitudes.
type Mission struct {
	MaxTurns        int     `yaml:"max_turns"`
	SoftExponent    float64 `yaml:"soft_exponent"`
	MaxTurnMult     float64 `yaml:"max_turn_mult"`
	LuckBand        float64 `yaml:"luck_band"`
	MinSuccessRatio float64 `yaml:"min_success_ratio"`

	BaseKillPct    float64 `yaml:"base_kill_pct"`
	EffectiveClampLo float64 `yaml:"effective_clamp_lo"`
	EffectiveClampHi float64 `yaml:"effective_clamp_hi"`

	SabotageMinPct int `yaml:"sabotage_min_pct"`
	SabotageMaxPct int `yaml:"sabotage_max_pct"`

	IntelRevealCount   int           `yaml:"intel_reveal_count"`
	StunDelayMinutes   int           `yaml:"stun_delay_minutes"`
	PermanentLossLevel int           `yaml:"permanent_loss_level"`
	LevelBracket       int           `yaml:"level_bracket"` // 0 disables the bracket check
	BaseXPPerTurn      int64         `yaml:"base_xp_per_turn"`
	DefenderXPShare    float64       `yaml:"defender_xp_share"`
	LevelXPStep        int64         `yaml:"level_xp_step"` // XP per level for level-up evaluation
	AssassinTargets    []game.UnitType `yaml:"assassin_targets"`
}

// StunDelay returns the pending-release delay as a duration.
func (m Mission) StunDelay() time.Duration {
	return time.Duration(m.StunDelayMinutes) * time.Minute
}

// Guard tunes the anti-farm reward ladder.
type Guard struct {
	PairShortWindowMinutes int     `yaml:"pair_short_window_minutes"`
	PairLongWindowMinutes  int     `yaml:"pair_long_window_minutes"`
	PairReduceAfter        int     `yaml:"pair_reduce_after"` // pair hits in short window before reduction
	PairZeroAfter          int     `yaml:"pair_zero_after"`   // pair hits in long window before zeroing
	GlobalDailyCap         int     `yaml:"global_daily_cap"`
	ReducedFactor          float64 `yaml:"reduced_factor"`
}

// Vault tunes the capacity ladder.
type Vault struct {
	PerUnitCapacity int64   `yaml:"per_unit_capacity"`
	UnitPrice       int64   `yaml:"unit_price"`
	GrowthRate      float64 `yaml:"growth_rate"`
	PerUnitUpkeep   int64   `yaml:"per_unit_upkeep"`
}

// Integrity tunes the structure health multiplier.
type Integrity struct {
	MultiplierFloor float64 `yaml:"multiplier_floor"`
}

// Default returns the built-in balance constants.
func Default() Config {
	return Config{
		Turn: Turn{
			IntervalMinutes: 10,
			BaseIncome:      500,
			WorkerPay:       45,
			BaseCitizens:    3,
			ActionTurns:     2,
			MaxActionTurns:  200,
			StatPctPerPoint: 0.01,
		},
		Units: Units{
			SoldierPower: 20,
			GuardPower:   20,
			SpyPower:     15,
			SentryPower:  15,

			SoldierUpkeep: 3,
			GuardUpkeep:   3,
			SentryUpkeep:  2,
			SpyUpkeep:     2,
		},
		Upgrades: Upgrades{
			PerLevelPct: map[game.Category][]float64{
				game.CategoryFortification: {0.05},
				game.CategoryArmory:        {0.05},
				game.CategoryOffense:       {0.05},
				game.CategoryDefense:       {0.05},
				game.CategoryEconomy:       {0.06},
				game.CategoryPopulation:    {0.08},
			},
		},
		Equipment: Equipment{
			TierStrength: []int64{5, 12, 25, 60, 150},
		},
		Alliance: Alliance{
			Stipend: 100,
			Structures: map[string]AllianceStructureDef{
				"trade_hall":    {IncomePct: 0.05},
				"grand_market":  {IncomePct: 0.10},
				"mine":          {ResourcePct: 0.05},
				"deep_mine":     {ResourcePct: 0.10},
				"war_banner":    {OffensePct: 0.05},
				"citadel":       {DefensePct: 0.05},
				"treasury":      {FlatCredits: 250},
				"granary":       {FlatCitizens: 2},
			},
		},
		Mission: Mission{
			MaxTurns:        10,
			SoftExponent:    0.3,
			MaxTurnMult:     2.0,
			LuckBand:        0.10,
			MinSuccessRatio: 1.05,

			BaseKillPct:      0.20,
			EffectiveClampLo: 0.75,
			EffectiveClampHi: 1.5,

			SabotageMinPct: 5,
			SabotageMaxPct: 15,

			IntelRevealCount:   3,
			StunDelayMinutes:   30,
			PermanentLossLevel: 30,
			LevelBracket:       0,
			BaseXPPerTurn:      25,
			DefenderXPShare:    0.5,
			LevelXPStep:        1000,
			AssassinTargets: []game.UnitType{
				game.UnitSoldier, game.UnitGuard, game.UnitSentry, game.UnitSpy,
			},
		},
		Guard: Guard{
			PairShortWindowMinutes: 60,
			PairLongWindowMinutes:  1440,
			PairReduceAfter:        3,
			PairZeroAfter:          8,
			GlobalDailyCap:         40,
			ReducedFactor:          0.5,
		},
		Vault: Vault{
			PerUnitCapacity: 250000,
			UnitPrice:       100000,
			GrowthRate:      0.5,
			PerUnitUpkeep:   1500,
		},
		Integrity: Integrity{
			MultiplierFloor: 0.10,
		},
	}
}

// Load reads a yaml file and overlays it on the defaults. A missing
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
