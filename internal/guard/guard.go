// Package guard scales mission rewards down when the same pair of
// owners interact too often, and caps one initiator's total daily
// encounters. Structure damage is never scaled, only resource
// transfer.
package guard

import (
	"fmt"
	"time"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

// Guard computes loot factors from the encounter log.
type Guard struct {
	cfg config.Guard
	db  *persistence.DB
}

// New creates an anti-farm guard.
func New(cfg config.Guard, db *persistence.DB) *Guard {
	return &Guard{cfg: cfg, db: db}
}

// LootFactor returns the reward multiplier for a prospective encounter:
// 1.0 under the first pair threshold, the reduced fraction between the
// thresholds, and 0.0 beyond the second or past the initiator's global
// daily cap.
func (g *Guard) LootFactor(initiatorID, targetID int64) (float64, error) {
	now := time.Now().UTC()
	conn := g.db.Conn()

	global, err := persistence.CountInitiatorEncounters(conn, initiatorID,
		now.Add(-time.Duration(g.cfg.PairLongWindowMinutes)*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrDependency, err)
	}
	if global >= g.cfg.GlobalDailyCap {
		return 0, nil
	}

	pairLong, err := persistence.CountPairEncounters(conn, initiatorID, targetID,
		now.Add(-time.Duration(g.cfg.PairLongWindowMinutes)*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrDependency, err)
	}
	if pairLong >= g.cfg.PairZeroAfter {
		return 0, nil
	}

	pairShort, err := persistence.CountPairEncounters(conn, initiatorID, targetID,
		now.Add(-time.Duration(g.cfg.PairShortWindowMinutes)*time.Minute))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", game.ErrDependency, err)
	}
	if pairShort >= g.cfg.PairReduceAfter {
		return g.cfg.ReducedFactor, nil
	}
	return 1.0, nil
}
