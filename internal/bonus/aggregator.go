// Package bonus collapses alliance-owned upgrade structures into the
// canonical bonus set. This is the only place alliance bonuses are
// computed; every other component consumes the output rather than
// re-deriving it, so dashboard and combat values cannot diverge.
package bonus

import (
	"log/slog"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

// Aggregator reads alliance structures and produces one AllianceBonus.
type Aggregator struct {
	db  *persistence.DB
	cfg config.Alliance
}

// NewAggregator creates an aggregator over the given store.
func NewAggregator(db *persistence.DB, cfg config.Alliance) *Aggregator {
	return &Aggregator{db: db, cfg: cfg}
}

// ForOwner returns the collapsed bonus set for an owner's alliance
// membership. No membership means all zeroes and no stipend. Percent
// categories keep the single best contributing structure (max, not
// sum); additive categories sum across structures. An unreachable
// structure list degrades to zero bonuses rather than failing the
// calling operation.
func (a *Aggregator) ForOwner(allianceID *int64) game.AllianceBonus {
	if allianceID == nil {
		return game.AllianceBonus{}
	}

	rows, err := persistence.AllianceStructures(a.db.Conn(), *allianceID)
	if err != nil {
		slog.Warn("alliance structure lookup failed, treating bonuses as zero",
			"alliance", *allianceID, "error", err)
		return game.AllianceBonus{}
	}

	return a.collapse(rows)
}

func (a *Aggregator) collapse(rows []game.AllianceStructure) game.AllianceBonus {
	out := game.AllianceBonus{Sources: make(map[string]string)}
	out.FlatCredits = a.cfg.Stipend

	for _, row := range rows {
		def, ok := a.cfg.Structures[row.StructureKey]
		if !ok || row.Level < 1 {
			continue
		}
		level := float64(row.Level)

		take := func(field string, have *float64, contribution float64) {
			if contribution > *have {
				*have = contribution
				out.Sources[field] = row.StructureKey
			}
		}
		take("income", &out.IncomePct, def.IncomePct*level)
		take("resource", &out.ResourcePct, def.ResourcePct*level)
		take("offense", &out.OffensePct, def.OffensePct*level)
		take("defense", &out.DefensePct, def.DefensePct*level)

		out.FlatCredits += def.FlatCredits * int64(row.Level)
		out.FlatCitizens += def.FlatCitizens * int64(row.Level)
	}

	return out
}
