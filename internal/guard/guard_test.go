package guard

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

func testGuard(t *testing.T) (*Guard, *persistence.DB) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(config.Default().Guard, db), db
}

func seedEncounters(t *testing.T, db *persistence.DB, initiator, target int64, n int, age time.Duration) {
	t.Helper()
	at := time.Now().UTC().Add(-age)
	for i := 0; i < n; i++ {
		err := persistence.InsertEncounter(db.Conn(), &game.EncounterRecord{
			ID: uuid.NewString(), InitiatorID: initiator, TargetID: target,
			Mission: game.MissionIntelligence, LootFactor: 1, CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("seed encounter: %v", err)
		}
	}
}

func TestLootFactor_FullBelowFirstThreshold(t *testing.T) {
	g, db := testGuard(t)
	seedEncounters(t, db, 1, 2, 2, time.Minute) // below PairReduceAfter=3

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != 1.0 {
		t.Fatalf("factor = %v want 1.0", f)
	}
}

func TestLootFactor_ReducedBetweenThresholds(t *testing.T) {
	g, db := testGuard(t)
	seedEncounters(t, db, 1, 2, 4, time.Minute) // past reduce, short of zero

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != config.Default().Guard.ReducedFactor {
		t.Fatalf("factor = %v want reduced %v", f, config.Default().Guard.ReducedFactor)
	}
}

func TestLootFactor_ZeroBeyondPairCap(t *testing.T) {
	g, db := testGuard(t)
	seedEncounters(t, db, 1, 2, 8, 2*time.Hour) // pairLong hits PairZeroAfter

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != 0 {
		t.Fatalf("factor = %v want 0", f)
	}
}

func TestLootFactor_GlobalDailyCapZeroesAnyTarget(t *testing.T) {
	g, db := testGuard(t)
	// 40 encounters against a third party trip the global cap even for
	// a fresh pair.
	seedEncounters(t, db, 1, 9, config.Default().Guard.GlobalDailyCap, time.Hour)

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != 0 {
		t.Fatalf("factor = %v want 0 (global cap)", f)
	}
}

func TestLootFactor_OldEncountersExpire(t *testing.T) {
	g, db := testGuard(t)
	seedEncounters(t, db, 1, 2, 20, 48*time.Hour) // outside both windows

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != 1.0 {
		t.Fatalf("factor = %v want 1.0 after windows expire", f)
	}
}

func TestLootFactor_ReverseDirectionDoesNotCount(t *testing.T) {
	g, db := testGuard(t)
	seedEncounters(t, db, 2, 1, 10, time.Minute) // target farming initiator

	f, err := g.LootFactor(1, 2)
	if err != nil {
		t.Fatalf("loot factor: %v", err)
	}
	if f != 1.0 {
		t.Fatalf("factor = %v want 1.0 (opposite-direction encounters)", f)
	}
}
