package pool

import (
	"errors"
	"math/big"
	"testing"
)

func TestAccountDataAggregatesAcrossReserves(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	data, err := engine.GetAccountData("alice")
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	// 50 ETH at 1600 USD.
	if data.CollateralValueWad.Cmp(bigFromString(t, "80000000000000000000000")) != 0 {
		t.Fatalf("collateral value: got %s", data.CollateralValueWad)
	}
	if data.DebtValueWad.Cmp(bigFromString(t, "30000000000000000000000")) != 0 {
		t.Fatalf("debt value: got %s", data.DebtValueWad)
	}
	// threshold-weighted 64000 over 30000 of debt.
	if data.HealthFactorWad.Cmp(bigFromString(t, "2133333333333333333")) != 0 {
		t.Fatalf("health factor: got %s", data.HealthFactorWad)
	}
	// LTV-weighted 60000 minus the 30000 already drawn.
	if data.AvailableBorrowsWad.Cmp(bigFromString(t, "30000000000000000000000")) != 0 {
		t.Fatalf("available borrows: got %s", data.AvailableBorrowsWad)
	}
}

func TestAccountDataNoDebtSentinel(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")

	data, err := engine.GetAccountData("alice")
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if data.HealthFactorWad.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("health factor without debt: got %s", data.HealthFactorWad)
	}
	if data.DebtValueWad.Sign() != 0 {
		t.Fatalf("debt value: got %s", data.DebtValueWad)
	}
}

func TestAccountDataEmptyUser(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	data, err := engine.GetAccountData("ghost")
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if data.CollateralValueWad.Sign() != 0 || data.DebtValueWad.Sign() != 0 {
		t.Fatalf("empty user has balances: %s / %s", data.CollateralValueWad, data.DebtValueWad)
	}
	if data.HealthFactorWad.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("health factor: got %s", data.HealthFactorWad)
	}
}

func TestMissingPriceIsHardFailure(t *testing.T) {
	engine, _, prices := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	// Losing the collateral quote must fail the whole evaluation, never
	// value the position at zero.
	delete(prices, "ETH")
	if _, err := engine.GetAccountData("alice"); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("account data without quote: got %v", err)
	}
	if err := engine.Borrow("alice", "USD", big.NewInt(1)); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("borrow without quote: got %v", err)
	}
}

func TestWithdrawGuardedByHealthFactor(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	// Dropping to 20 ETH leaves 25600 of threshold-weighted collateral
	// against 30000 of debt.
	if _, err := engine.Withdraw("alice", "ETH", bigFromString(t, "30000000000000000000")); !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("unsafe withdraw: got %v", err)
	}
	// A small withdrawal that keeps the account healthy passes.
	if _, err := engine.Withdraw("alice", "ETH", bigFromString(t, "5000000000000000000")); err != nil {
		t.Fatalf("safe withdraw: %v", err)
	}
}

func TestSetCollateralFlagGuardsDebt(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	// The ETH supply is the only thing backing the debt.
	if err := engine.SetCollateralFlag("alice", "ETH", false); !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("disable sole collateral: got %v", err)
	}

	// After clearing the debt the flag can be dropped.
	if _, _, err := engine.RepayFull("alice", "alice", "USD"); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := engine.SetCollateralFlag("alice", "ETH", false); err != nil {
		t.Fatalf("disable without debt: %v", err)
	}
	pos, _ := engine.GetUserPosition("alice", "ETH")
	if pos.UseAsCollateral {
		t.Fatal("collateral flag still set")
	}

	data, err := engine.GetAccountData("alice")
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if data.CollateralValueWad.Sign() != 0 {
		t.Fatalf("disabled collateral still counted: %s", data.CollateralValueWad)
	}
}

func TestDisabledCollateralDoesNotBackBorrows(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	if err := engine.SetCollateralFlag("alice", "ETH", false); err != nil {
		t.Fatalf("disable collateral: %v", err)
	}

	if err := engine.Borrow("alice", "USD", bigFromString(t, "1000000000000000000000")); !errors.Is(err, ErrHealthFactorTooLow) {
		t.Fatalf("borrow against disabled collateral: got %v", err)
	}
}
