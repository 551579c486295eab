package accrual

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/ironhold/internal/bonus"
	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/integrity"
	"github.com/talgya/ironhold/internal/ledger"
	"github.com/talgya/ironhold/internal/persistence"
	"github.com/talgya/ironhold/internal/vault"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) (*Engine, *persistence.DB) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	locks := persistence.NewLockRegistry()
	audit := ledger.New(db)
	e := NewEngine(cfg, db, locks,
		bonus.NewAggregator(db, cfg.Alliance),
		integrity.NewStore(db, cfg.Integrity),
		vault.NewManager(cfg.Vault, db, locks, audit),
		audit)
	e.SetClock(func() time.Time { return baseTime })
	return e, db
}

func seed(t *testing.T, db *persistence.DB, o *game.Owner) {
	t.Helper()
	if o.LastAccruedAt.IsZero() {
		o.LastAccruedAt = baseTime
	}
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}
}

func TestCatchUp_NoElapsedTimeChangesNothing(t *testing.T) {
	e, db := testEngine(t)
	seed(t, db, &game.Owner{ID: 1, Name: "a", Workers: 10, Credits: 100})

	for i := 0; i < 3; i++ {
		res, err := e.CatchUp(1)
		if err != nil {
			t.Fatalf("catch-up %d: %v", i, err)
		}
		if res.Turns != 0 || res.CreditsDelta != 0 {
			t.Fatalf("catch-up %d applied %+v want nothing", i, res)
		}
	}

	o, _ := persistence.OwnerByID(db.Conn(), 1)
	if o.Credits != 100 {
		t.Fatalf("credits = %d want 100 untouched", o.Credits)
	}
}

func TestCatchUp_ExactTurnBoundaries(t *testing.T) {
	e, db := testEngine(t)
	cfg := config.Default()
	seed(t, db, &game.Owner{ID: 1, Name: "a", Workers: 10})

	// 25 minutes = 2 whole turns with a 5 minute remainder.
	e.SetClock(func() time.Time { return baseTime.Add(25 * time.Minute) })
	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}
	if res.Turns != 2 {
		t.Fatalf("turns = %d want 2", res.Turns)
	}

	perTurn := cfg.Turn.BaseIncome + 10*cfg.Turn.WorkerPay
	if res.CreditsDelta != 2*perTurn {
		t.Fatalf("credits delta = %d want %d (exactly 2 turn applications)", res.CreditsDelta, 2*perTurn)
	}
	if res.CitizensDelta != 2*cfg.Turn.BaseCitizens {
		t.Fatalf("citizens delta = %d want %d", res.CitizensDelta, 2*cfg.Turn.BaseCitizens)
	}

	// Rerunning at the same instant applies nothing (idempotence).
	res, err = e.CatchUp(1)
	if err != nil {
		t.Fatalf("second catch-up: %v", err)
	}
	if res.Turns != 0 || res.CreditsDelta != 0 {
		t.Fatalf("second catch-up applied %+v want nothing", res)
	}

	// The 5 minute remainder carries: another 5 minutes later the
	// third turn lands.
	e.SetClock(func() time.Time { return baseTime.Add(30 * time.Minute) })
	res, err = e.CatchUp(1)
	if err != nil {
		t.Fatalf("third catch-up: %v", err)
	}
	if res.Turns != 1 {
		t.Fatalf("turns = %d want 1 (remainder carried)", res.Turns)
	}
}

func TestCatchUp_MaintenanceDeducted(t *testing.T) {
	e, db := testEngine(t)
	cfg := config.Default()
	seed(t, db, &game.Owner{ID: 1, Name: "a", Workers: 10, Soldiers: 100, Spies: 50})

	e.SetClock(func() time.Time { return baseTime.Add(10 * time.Minute) })
	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}

	gross := cfg.Turn.BaseIncome + 10*cfg.Turn.WorkerPay
	upkeep := 100*cfg.Units.SoldierUpkeep + 50*cfg.Units.SpyUpkeep
	if res.CreditsDelta != gross-upkeep {
		t.Fatalf("credits delta = %d want %d", res.CreditsDelta, gross-upkeep)
	}
}

func TestCatchUp_CreditsNeverGoNegative(t *testing.T) {
	e, db := testEngine(t)
	// A huge army and no workers: upkeep swamps income.
	seed(t, db, &game.Owner{ID: 1, Name: "a", Soldiers: 100000, Credits: 10})

	e.SetClock(func() time.Time { return baseTime.Add(10 * time.Minute) })
	if _, err := e.CatchUp(1); err != nil {
		t.Fatalf("catch-up: %v", err)
	}

	o, _ := persistence.OwnerByID(db.Conn(), 1)
	if o.Credits != 0 {
		t.Fatalf("credits = %d want clamp at 0", o.Credits)
	}
}

func TestCatchUp_ReleasesDueUnits(t *testing.T) {
	e, db := testEngine(t)
	seed(t, db, &game.Owner{ID: 1, Name: "a", Untrained: 5})

	for _, r := range []game.PendingUnitRelease{
		{OwnerID: 1, UnitType: game.UnitSoldier, Quantity: 20, AvailableAt: baseTime.Add(-time.Minute)},
		{OwnerID: 1, UnitType: game.UnitGuard, Quantity: 10, AvailableAt: baseTime.Add(-time.Hour)},
		{OwnerID: 1, UnitType: game.UnitSpy, Quantity: 7, AvailableAt: baseTime.Add(time.Hour)}, // not due
	} {
		if err := persistence.InsertPendingRelease(db.Conn(), &r); err != nil {
			t.Fatalf("seed release: %v", err)
		}
	}

	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}
	if res.UnitsReleased != 30 {
		t.Fatalf("released = %d want 30", res.UnitsReleased)
	}

	o, _ := persistence.OwnerByID(db.Conn(), 1)
	if o.Untrained != 35 {
		t.Fatalf("untrained = %d want 35", o.Untrained)
	}

	left, _ := persistence.PendingReleasesByOwner(db.Conn(), 1)
	if len(left) != 1 || left[0].UnitType != game.UnitSpy {
		t.Fatalf("remaining releases = %+v want only the future spy row", left)
	}
}

func TestCatchUp_VaultUpkeepFoldsIntoMaintenance(t *testing.T) {
	e, db := testEngine(t)
	cfg := config.Default()
	seed(t, db, &game.Owner{ID: 1, Name: "a", Workers: 10, Banked: 1 << 30})
	if err := persistence.SaveVault(db.Conn(), &game.VaultState{OwnerID: 1, ActiveUnits: 3}); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	e.SetClock(func() time.Time { return baseTime.Add(10 * time.Minute) })
	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}

	gross := cfg.Turn.BaseIncome + 10*cfg.Turn.WorkerPay
	want := gross - 2*cfg.Vault.PerUnitUpkeep // first vault unit is free
	if res.CreditsDelta != want {
		t.Fatalf("credits delta = %d want %d", res.CreditsDelta, want)
	}
}

func TestIncomeSummary_MatchesAccrualFormula(t *testing.T) {
	e, db := testEngine(t)
	cfg := config.Default()
	seed(t, db, &game.Owner{ID: 1, Name: "a", Workers: 20, TierEconomy: 2, StatWisdom: 10})

	bd, err := e.IncomeSummary(1)
	if err != nil {
		t.Fatalf("income summary: %v", err)
	}

	e.SetClock(func() time.Time { return baseTime.Add(10 * time.Minute) })
	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}
	if res.CreditsDelta != bd.NetPerTurn {
		t.Fatalf("accrual applied %d but summary promised %d", res.CreditsDelta, bd.NetPerTurn)
	}
	if bd.EconomyMult != 1+cfg.Upgrades.CumulativePct(game.CategoryEconomy, 2) {
		t.Fatalf("economy mult = %v", bd.EconomyMult)
	}
}

func TestCatchUp_VaultQueryFailureRollsBack(t *testing.T) {
	e, db := testEngine(t)
	seed(t, db, &game.Owner{ID: 1, Name: "a", Credits: 100,
		LastAccruedAt: baseTime.Add(-20 * time.Minute)})

	if _, err := db.Conn().Exec(`DROP TABLE vault_state`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if _, err := e.CatchUp(1); err == nil {
		t.Fatal("catch-up must fail when vault state cannot be read, not waive upkeep")
	}

	o, err := persistence.OwnerByID(db.Conn(), 1)
	if err != nil {
		t.Fatalf("load owner: %v", err)
	}
	if o.Credits != 100 || !o.LastAccruedAt.Equal(baseTime.Add(-20*time.Minute)) {
		t.Fatalf("owner = credits %d, accrued %v: rolled-back catch-up must leave no trace",
			o.Credits, o.LastAccruedAt)
	}
}

func TestCatchUp_VaultAffordabilityCoversEveryAccruedTurn(t *testing.T) {
	e, db := testEngine(t)
	cfg := config.Default()

	// 4000 banked covers one 3-unit bill (3000) but nowhere near
	// twelve of them, nor twelve 2-unit bills.
	seed(t, db, &game.Owner{ID: 1, Name: "a", Banked: 4000,
		LastAccruedAt: baseTime.Add(-2 * time.Hour)})
	if err := persistence.SaveVault(db.Conn(), &game.VaultState{OwnerID: 1, ActiveUnits: 3}); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	res, err := e.CatchUp(1)
	if err != nil {
		t.Fatalf("catch-up: %v", err)
	}
	if res.Turns != 12 {
		t.Fatalf("turns = %d want 12", res.Turns)
	}
	if res.VaultContract != 2 {
		t.Fatalf("contracted = %d want 2 (down to the free unit)", res.VaultContract)
	}

	vs, err := persistence.VaultByOwner(db.Conn(), 1)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	if vs.ActiveUnits != 1 {
		t.Fatalf("active units = %d want 1", vs.ActiveUnits)
	}

	// The free unit carries no bill, so income is pure base income.
	if want := 12 * cfg.Turn.BaseIncome; res.CreditsDelta != want {
		t.Fatalf("credits delta = %d want %d", res.CreditsDelta, want)
	}
}
