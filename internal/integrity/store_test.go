package integrity

import (
	"path/filepath"
	"testing"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/persistence"
)

func testStore(t *testing.T) (*Store, *persistence.DB) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, config.Default().Integrity), db
}

func seedOwner(t *testing.T, db *persistence.DB, o *game.Owner) {
	t.Helper()
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}
}

// damage runs one ApplyDamage call in its own transaction.
func damage(t *testing.T, s *Store, db *persistence.DB, ownerID int64, cat game.Category, pct int) DamageResult {
	t.Helper()
	tx, err := db.Beginx()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	o, err := persistence.OwnerByID(tx, ownerID)
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	res, err := s.ApplyDamage(tx, o, cat, pct)
	if err != nil {
		t.Fatalf("apply damage: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res
}

func TestMultiplier_MissingRowIsFullRate(t *testing.T) {
	s, _ := testStore(t)
	if m := s.Multiplier(42, game.CategoryEconomy); m != 1.0 {
		t.Fatalf("multiplier = %v want 1.0", m)
	}
}

func TestMultiplier_FlooredAtTenPercent(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierEconomy: 2})

	damage(t, s, db, 1, game.CategoryEconomy, 97)
	if m := s.Multiplier(1, game.CategoryEconomy); m != 0.10 {
		t.Fatalf("multiplier = %v want floor 0.10", m)
	}
}

func TestApplyDamage_ReducesHealthWithinBounds(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierOffense: 2})

	res := damage(t, s, db, 1, game.CategoryOffense, 30)
	if res.Health != 70 || res.Locked || res.Downgraded {
		t.Fatalf("result = %+v want health 70, unlocked", res)
	}
	if m := s.Multiplier(1, game.CategoryOffense); m != 0.70 {
		t.Fatalf("multiplier = %v want 0.70", m)
	}
}

func TestApplyDamage_DestructionDowngradesAndLocks(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierOffense: 3})

	res := damage(t, s, db, 1, game.CategoryOffense, 100)
	if res.Health != 0 || !res.Locked || !res.Downgraded {
		t.Fatalf("result = %+v want destroyed+locked+downgraded", res)
	}
	if res.TierAfter != 2 {
		t.Fatalf("tier after = %d want 2", res.TierAfter)
	}

	o, err := persistence.OwnerByID(db.Conn(), 1)
	if err != nil {
		t.Fatalf("reload owner: %v", err)
	}
	if o.TierOffense != 2 {
		t.Fatalf("persisted tier = %d want 2", o.TierOffense)
	}
}

func TestApplyDamage_LockedRowIsIdempotent(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierOffense: 3})

	damage(t, s, db, 1, game.CategoryOffense, 100)
	// Second and third hits on the locked row change nothing.
	for i := 0; i < 2; i++ {
		res := damage(t, s, db, 1, game.CategoryOffense, 50)
		if res.Health != 0 || !res.Locked || res.Downgraded {
			t.Fatalf("hit %d on locked row = %+v want unchanged no-op", i+2, res)
		}
	}

	o, err := persistence.OwnerByID(db.Conn(), 1)
	if err != nil {
		t.Fatalf("reload owner: %v", err)
	}
	if o.TierOffense != 2 {
		t.Fatalf("tier = %d want 2 (single downgrade only)", o.TierOffense)
	}
}

func TestApplyDamage_TierNeverBelowZero(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a"}) // tier 0 already

	res := damage(t, s, db, 1, game.CategoryArmory, 100)
	if res.TierAfter != 0 {
		t.Fatalf("tier after = %d want 0", res.TierAfter)
	}
}

func TestRepair_ClearsLock(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierOffense: 1})

	damage(t, s, db, 1, game.CategoryOffense, 100)
	if err := s.Repair(1, game.CategoryOffense, 60); err != nil {
		t.Fatalf("repair: %v", err)
	}

	res := damage(t, s, db, 1, game.CategoryOffense, 10)
	if res.Health != 50 || res.Locked {
		t.Fatalf("post-repair damage = %+v want health 50 unlocked", res)
	}
}

func TestEnsureRow_CreatesOnceAt100(t *testing.T) {
	s, db := testStore(t)
	seedOwner(t, db, &game.Owner{ID: 1, Name: "a", TierDefense: 1})

	if err := s.EnsureRow(db.Conn(), 1, game.CategoryDefense); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	damage(t, s, db, 1, game.CategoryDefense, 40)

	// Re-ensuring must not reset an existing row.
	if err := s.EnsureRow(db.Conn(), 1, game.CategoryDefense); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if m := s.Multiplier(1, game.CategoryDefense); m != 0.60 {
		t.Fatalf("multiplier = %v want 0.60", m)
	}
}
