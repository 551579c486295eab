package vault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/talgya/ironhold/internal/config"
	"github.com/talgya/ironhold/internal/game"
	"github.com/talgya/ironhold/internal/ledger"
	"github.com/talgya/ironhold/internal/persistence"
)

func testManager(t *testing.T) (*Manager, *persistence.DB) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	m := NewManager(config.Default().Vault, db, persistence.NewLockRegistry(), ledger.New(db))
	return m, db
}

func TestNextCost_Ladder(t *testing.T) {
	m, _ := testManager(t)
	price := config.Default().Vault.UnitPrice

	cases := []struct {
		n    int
		want int64
	}{
		{1, 0},
		{2, price},
		{3, int64(float64(price) * 1.5)},
		{4, int64(float64(price) * 2.25)},
	}
	for _, c := range cases {
		if got := m.NextCost(c.n); got != c.want {
			t.Fatalf("NextCost(%d) = %d want %d", c.n, got, c.want)
		}
	}
}

func TestCapacity_NeverBelowOneUnit(t *testing.T) {
	m, _ := testManager(t)
	per := config.Default().Vault.PerUnitCapacity

	if got := m.Capacity(0); got != per {
		t.Fatalf("Capacity(0) = %d want %d", got, per)
	}
	if got := m.Capacity(3); got != 3*per {
		t.Fatalf("Capacity(3) = %d want %d", got, 3*per)
	}
}

func TestPurchase_DebitsBankedFirst(t *testing.T) {
	m, db := testManager(t)
	price := config.Default().Vault.UnitPrice

	o := &game.Owner{ID: 1, Name: "a", Banked: price / 2, Credits: price}
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}

	vs, err := m.Purchase(1)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if vs.ActiveUnits != 2 {
		t.Fatalf("active units = %d want 2", vs.ActiveUnits)
	}

	got, err := persistence.OwnerByID(db.Conn(), 1)
	if err != nil {
		t.Fatalf("reload owner: %v", err)
	}
	if got.Banked != 0 {
		t.Fatalf("banked = %d want 0 (banked drained first)", got.Banked)
	}
	if got.Credits != price/2 {
		t.Fatalf("credits = %d want %d", got.Credits, price/2)
	}
}

func TestPurchase_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	m, db := testManager(t)

	o := &game.Owner{ID: 1, Name: "a", Credits: 10}
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}

	if _, err := m.Purchase(1); !errors.Is(err, game.ErrInsufficientFunds) {
		t.Fatalf("err = %v want ErrInsufficientFunds", err)
	}

	vs, err := persistence.VaultByOwner(db.Conn(), 1)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	if vs.ActiveUnits != 1 {
		t.Fatalf("active units = %d want 1", vs.ActiveUnits)
	}
}

func TestPurchase_MissingVaultRowIsNotFreeCapacity(t *testing.T) {
	m, db := testManager(t)

	// Owner row without the seeded vault row (legacy data shape).
	o := &game.Owner{ID: 1, Name: "a", Credits: 1 << 40}
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}
	if _, err := db.Conn().Exec(`DELETE FROM vault_state WHERE owner_id = 1`); err != nil {
		t.Fatalf("drop vault row: %v", err)
	}

	if _, err := m.Purchase(1); !errors.Is(err, game.ErrNoVaultData) {
		t.Fatalf("err = %v want ErrNoVaultData", err)
	}
}

func TestPayUpkeep_ContractsUntilAffordable(t *testing.T) {
	m, db := testManager(t)
	upkeep := config.Default().Vault.PerUnitUpkeep

	// 4 units bill 3×upkeep; owner can only carry 1×upkeep.
	o := &game.Owner{ID: 1, Name: "a", Banked: upkeep, Credits: 0}
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}
	if err := persistence.SaveVault(db.Conn(), &game.VaultState{OwnerID: 1, ActiveUnits: 4}); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	bill, err := m.PayUpkeep(1)
	if err != nil {
		t.Fatalf("pay upkeep: %v", err)
	}
	if bill != upkeep {
		t.Fatalf("bill = %d want %d", bill, upkeep)
	}

	vs, err := persistence.VaultByOwner(db.Conn(), 1)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	if vs.ActiveUnits != 2 {
		t.Fatalf("active units = %d want 2", vs.ActiveUnits)
	}

	got, _ := persistence.OwnerByID(db.Conn(), 1)
	if got.Banked != 0 {
		t.Fatalf("banked = %d want 0", got.Banked)
	}
}

func TestPayUpkeep_NeverDeactivatesFreeFirstUnit(t *testing.T) {
	m, db := testManager(t)

	o := &game.Owner{ID: 1, Name: "a"} // broke
	if err := persistence.InsertOwner(db.Conn(), o); err != nil {
		t.Fatalf("insert owner: %v", err)
	}
	if err := persistence.SaveVault(db.Conn(), &game.VaultState{OwnerID: 1, ActiveUnits: 3}); err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	bill, err := m.PayUpkeep(1)
	if err != nil {
		t.Fatalf("pay upkeep: %v", err)
	}
	if bill != 0 {
		t.Fatalf("bill = %d want 0 after full contraction", bill)
	}

	vs, _ := persistence.VaultByOwner(db.Conn(), 1)
	if vs.ActiveUnits != 1 {
		t.Fatalf("active units = %d want 1 (first unit is free and kept)", vs.ActiveUnits)
	}
}
