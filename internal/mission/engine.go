// Package mission resolves one asymmetric probabilistic encounter
// between an initiator and a target: precondition checks, the success
// test, the outcome mutation and the encounter log entry form a single
// atomic unit under both owners' locks.
package mission

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/talgya/ironhold/internal/accrual"
	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/integrity"
	"github.com/talgya/ironhold/internal/persistence"
)

// Accruer settles elapsed turn accrual for one owner
// (accrual.Engine in production; nil skips the step).
type Accruer interface {
	CatchUp(ownerID int64) (*accrual.Result, error)
}

// PowerSource computes derived power magnitudes (power.Calculator in
// production).
type PowerSource interface {
	Compute(q sqlx.Ext, o *game.Owner, role game.Role) (int64, error)
}

// LootSource scales resource rewards (guard.Guard in production; tests
// supply a constant 1.0 double).
type LootSource interface {
	LootFactor(initiatorID, targetID int64) (float64, error)
}

// StructureDamager applies sabotage damage (integrity.Store in
// production).
type StructureDamager interface {
	ApplyDamage(tx *sqlx.Tx, owner *game.Owner, cat game.Category, pct int) (integrity.DamageResult, error)
}

// Publisher receives committed encounter records, best-effort. The api
// feed hub implements it; nil disables publishing.
type Publisher interface {
	PublishEncounter(e game.EncounterRecord)
}

// Params carries mission-type specific input.
type Params struct {
	TargetUnit game.UnitType `json:"target_unit,omitempty"` // assassination only
}

// Outcome is the resolved result relayed verbatim to the caller.
type Outcome struct {
	EncounterID  string           `json:"encounter_id"`
	Mission      game.MissionType `json:"mission"`
	Success      bool             `json:"success"`
	Effective    float64          `json:"effective"`
	AttackPower  int64            `json:"attack_power"`
	DefensePower int64            `json:"defense_power"`
	LootFactor   float64          `json:"loot_factor"`

	Intel map[string]int64 `json:"intel,omitempty"`

	TargetUnit game.UnitType `json:"target_unit,omitempty"`
	UnitsLost  int64         `json:"units_lost,omitempty"`
	Stunned    bool          `json:"stunned,omitempty"` // losses pending release, not permanent

	StructureHit game.Category `json:"structure_hit,omitempty"`
	Damage       int           `json:"damage,omitempty"`
	Downgraded   bool          `json:"downgraded,omitempty"`

	XPInitiator int64 `json:"xp_initiator"`
	XPTarget    int64 `json:"xp_target"`
}

// Engine resolves missions. All collaborators are injected and
// mandatory except feed, which may be nil.
type Engine struct {
	cfg    config.Config
	db     *persistence.DB
	locks  *persistence.LockRegistry
	turns  Accruer
	powers PowerSource
	loot   LootSource
	damage StructureDamager
	feed   Publisher

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewEngine creates a mission engine.
func NewEngine(cfg config.Config, db *persistence.DB, locks *persistence.LockRegistry,
	turns Accruer, powers PowerSource, loot LootSource, damage StructureDamager, feed Publisher) *Engine {
	return &Engine{
		cfg:    cfg,
		db:     db,
		locks:  locks,
		turns:  turns,
		powers: powers,
		loot:   loot,
		damage: damage,
		feed:   feed,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetRand pins the random source. Test hook.
func (e *Engine) SetRand(r *rand.Rand) { e.rng = r }

// SetClock pins the clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) randFloat() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

// Resolve runs one mission end to end. Validation failures reject
// before any state read; precondition failures roll back after the
// read; everything after the success test commits or rolls back as one
// unit.
func (e *Engine) Resolve(initiatorID, targetID int64, turnsSpent int, mtype game.MissionType, params Params) (*Outcome, error) {
	m := e.cfg.Mission
	if turnsSpent < 1 || turnsSpent > m.MaxTurns {
		return nil, fmt.Errorf("%w: turns %d outside 1..%d", game.ErrValidation, turnsSpent, m.MaxTurns)
	}
	switch mtype {
	case game.MissionIntelligence, game.MissionAssassination, game.MissionSabotage:
	default:
		return nil, fmt.Errorf("%w: unknown mission type %q", game.ErrValidation, mtype)
	}
	if mtype == game.MissionAssassination && !allowedTarget(m.AssassinTargets, params.TargetUnit) {
		return nil, fmt.Errorf("%w: unit %q is not a valid assassination target", game.ErrValidation, params.TargetUnit)
	}
	if initiatorID == targetID {
		return nil, game.ErrSelfTarget
	}

	// Both parties catch up before the contest so offline-earned action
	// turns count and overdue unit releases land. CatchUp takes the
	// owner lock itself, so it cannot run under the pair lock.
	if e.turns != nil {
		if _, err := e.turns.CatchUp(initiatorID); err != nil {
			return nil, err
		}
		if _, err := e.turns.CatchUp(targetID); err != nil {
			return nil, err
		}
	}

	unlock := e.locks.LockPair(initiatorID, targetID)
	defer unlock()

	tx, err := e.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("%w: begin mission: %v", game.ErrConsistency, err)
	}
	defer tx.Rollback()

	initiator, err := persistence.OwnerByID(tx, initiatorID)
	if err != nil {
		return nil, err
	}
	target, err := persistence.OwnerByID(tx, targetID)
	if err != nil {
		return nil, err
	}

	// Preconditions, re-checked under the pair lock.
	if initiator.AllianceID != nil && target.AllianceID != nil && *initiator.AllianceID == *target.AllianceID {
		return nil, game.ErrSameAlliance
	}
	if initiator.Spies < 1 {
		return nil, game.ErrNoUnits
	}
	if initiator.ActionTurns < turnsSpent {
		return nil, game.ErrInsufficientTurns
	}
	if m.LevelBracket > 0 {
		gap := initiator.Level - target.Level
		if gap < 0 {
			gap = -gap
		}
		if gap > m.LevelBracket {
			return nil, game.ErrLevelBracket
		}
	}

	lootFactor, err := e.loot.LootFactor(initiatorID, targetID)
	if err != nil {
		return nil, err
	}

	atk, err := e.powers.Compute(tx, initiator, game.RoleEspionageOffense)
	if err != nil {
		return nil, err
	}
	def, err := e.powers.Compute(tx, target, game.RoleEspionageDefense)
	if err != nil {
		return nil, err
	}
	if def < 1 {
		def = 1
	}

	ratio := float64(atk) / float64(def)
	turnMult := math.Min(m.MaxTurnMult, math.Pow(float64(turnsSpent), m.SoftExponent))
	luck := 1 + (e.randFloat()*2-1)*m.LuckBand
	effective := ratio * turnMult * luck
	success := effective >= m.MinSuccessRatio

	out := &Outcome{
		Mission:      mtype,
		Success:      success,
		Effective:    effective,
		AttackPower:  atk,
		DefensePower: def,
		LootFactor:   lootFactor,
	}

	if success {
		switch mtype {
		case game.MissionIntelligence:
			if err := e.gatherIntel(tx, target, out); err != nil {
				return nil, err
			}
		case game.MissionAssassination:
			if err := e.assassinate(tx, target, params.TargetUnit, effective, out); err != nil {
				return nil, err
			}
		case game.MissionSabotage:
			if err := e.sabotage(tx, target, effective, out); err != nil {
				return nil, err
			}
		}
	}

	// Turns are spent win or lose, and both sides always earn XP;
	// only the magnitude varies with the contest.
	initiator.ActionTurns -= turnsSpent
	out.XPInitiator = e.grantXP(initiator, target, ratio, turnsSpent, 1)
	out.XPTarget = e.grantXP(target, initiator, 1/math.Max(ratio, 1e-9), turnsSpent, m.DefenderXPShare)

	if err := persistence.SaveOwner(tx, initiator); err != nil {
		return nil, err
	}
	if err := persistence.SaveOwner(tx, target); err != nil {
		return nil, err
	}

	rec := game.EncounterRecord{
		ID:           uuid.NewString(),
		InitiatorID:  initiatorID,
		TargetID:     targetID,
		Mission:      mtype,
		Success:      success,
		AttackPower:  atk,
		DefensePower: def,
		TurnsSpent:   turnsSpent,
		UnitsLost:    out.UnitsLost,
		StructureHit: string(out.StructureHit),
		Damage:       out.Damage,
		LootFactor:   lootFactor,
		CreatedAt:    e.now(),
	}
	if err := persistence.InsertEncounter(tx, &rec); err != nil {
		return nil, err
	}
	out.EncounterID = rec.ID

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit mission: %v", game.ErrConsistency, err)
	}

	if e.feed != nil {
		e.feed.PublishEncounter(rec)
	}
	return out, nil
}

func allowedTarget(allowed []game.UnitType, u game.UnitType) bool {
	for _, a := range allowed {
		if a == u {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// gatherIntel reveals a pseudo-random fixed-count subset of the
// target's derived stats. Read-only from the target's perspective.
func (e *Engine) gatherIntel(tx *sqlx.Tx, target *game.Owner, out *Outcome) error {
	type stat struct {
		name  string
		value int64
	}

	var stats []stat
	for _, role := range []game.Role{
		game.RoleOffense, game.RoleDefense, game.RoleEspionageOffense, game.RoleEspionageDefense,
	} {
		p, err := e.powers.Compute(tx, target, role)
		if err != nil {
			return err
		}
		stats = append(stats, stat{string(role) + "_power", p})
	}
	stats = append(stats,
		stat{"credits", target.Credits},
		stat{"workers", target.Workers},
		stat{"soldiers", target.Soldiers},
		stat{"untrained", target.Untrained},
	)

	e.mu.Lock()
	e.rng.Shuffle(len(stats), func(i, j int) { stats[i], stats[j] = stats[j], stats[i] })
	e.mu.Unlock()

	n := e.cfg.Mission.IntelRevealCount
	if n > len(stats) {
		n = len(stats)
	}
	out.Intel = make(map[string]int64, n)
	for _, s := range stats[:n] {
		out.Intel[s.name] = s.value
	}
	return nil
}

// assassinate removes a slice of one target unit pool. Below the
// permanent-loss level the units are stunned into a pending release
// instead of destroyed.
func (e *Engine) assassinate(tx *sqlx.Tx, target *game.Owner, unit game.UnitType, effective float64, out *Outcome) error {
	m := e.cfg.Mission
	current := target.UnitCount(unit)
	kill := int64(math.Floor(float64(current) * m.BaseKillPct *
		clamp(effective, m.EffectiveClampLo, m.EffectiveClampHi)))
	if kill > current {
		kill = current
	}

	out.TargetUnit = unit
	out.UnitsLost = kill
	if kill <= 0 {
		return nil
	}

	target.SetUnitCount(unit, current-kill)
	if target.Level < m.PermanentLossLevel {
		out.Stunned = true
		return persistence.InsertPendingRelease(tx, &game.PendingUnitRelease{
			OwnerID:     target.ID,
			UnitType:    unit,
			Quantity:    kill,
			AvailableAt: e.now().Add(m.StunDelay()),
		})
	}
	return nil
}

// sabotage damages the fortification while it stands, otherwise an
// undamaged unlocked category at random. Damage may trigger a tier
// downgrade through the integrity store.
func (e *Engine) sabotage(tx *sqlx.Tx, target *game.Owner, effective float64, out *Outcome) error {
	m := e.cfg.Mission

	cat, ok, err := e.pickSabotageTarget(tx, target)
	if err != nil {
		return err
	}
	if !ok {
		return nil // nothing left standing to hit
	}

	span := float64(m.SabotageMaxPct - m.SabotageMinPct)
	pct := float64(m.SabotageMinPct) + e.randFloat()*span
	pct *= clamp(effective, m.EffectiveClampLo, m.EffectiveClampHi)

	res, err := e.damage.ApplyDamage(tx, target, cat, int(math.Floor(pct)))
	if err != nil {
		return err
	}
	out.StructureHit = cat
	out.Damage = int(math.Floor(pct))
	out.Downgraded = res.Downgraded
	return nil
}

// pickSabotageTarget prefers the fortification while it has health,
// then falls back to a random damageable category.
func (e *Engine) pickSabotageTarget(tx *sqlx.Tx, target *game.Owner) (game.Category, bool, error) {
	if target.TierFortification > 0 {
		row, err := persistence.StructureHealthRow(tx, target.ID, game.CategoryFortification)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// No row yet means full health.
			return game.CategoryFortification, true, nil
		case err != nil:
			return "", false, err
		case row.Health > 0 && !row.Locked:
			return game.CategoryFortification, true, nil
		}
	}

	var candidates []game.Category
	for _, cat := range game.Categories {
		if target.Tier(cat) == 0 {
			continue
		}
		row, err := persistence.StructureHealthRow(tx, target.ID, cat)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Never damaged, fair game.
			candidates = append(candidates, cat)
		case err != nil:
			return "", false, err
		case row.Health > 0 && !row.Locked:
			candidates = append(candidates, cat)
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	pick := int(e.randFloat() * float64(len(candidates)))
	if pick >= len(candidates) {
		pick = len(candidates) - 1
	}
	return candidates[pick], true, nil
}

// grantXP credits experience scaled by turns, the level gap and a
// logarithmically diminishing power ratio, floored at 1, then runs the
// level-up evaluation.
func (e *Engine) grantXP(o, other *game.Owner, ratio float64, turns int, share float64) int64 {
	m := e.cfg.Mission
	levelGap := clamp(1+0.05*float64(other.Level-o.Level), 0.5, 2)
	xp := int64(math.Floor(float64(m.BaseXPPerTurn) * float64(turns) *
		(1 + math.Log(1+clamp(ratio, 0, 10))) * levelGap * share))
	if xp < 1 {
		xp = 1
	}

	o.Experience += xp
	step := m.LevelXPStep
	if step > 0 {
		for o.Experience >= int64(o.Level)*step {
			o.Experience -= int64(o.Level) * step
			o.Level++
			o.LevelPoints++
		}
	}
	return xp
}
