package pool

import (
	"errors"
	"math/big"
	"testing"

	"lendpool/core/events"
)

// newUnderwaterAccount sets up alice with 50 ETH of collateral against a
// 30000 USD debt, then drops the ETH price so the position turns unsafe.
func newUnderwaterAccount(t *testing.T) (*Engine, staticPrices) {
	t.Helper()
	engine, _, prices := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	prices["ETH"] = bigFromString(t, "600000000000000000000")
	return engine, prices
}

func TestLiquidationSeizesDiscountedCollateral(t *testing.T) {
	engine, _ := newUnderwaterAccount(t)

	result, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", bigFromString(t, "15000000000000000000000"))
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if result.RepaidWad.Cmp(bigFromString(t, "15000000000000000000000")) != 0 {
		t.Fatalf("repaid: got %s", result.RepaidWad)
	}
	// 15000 USD buys 25 ETH at 600, plus the 5% bonus.
	if result.SeizedWad.Cmp(bigFromString(t, "26250000000000000000")) != 0 {
		t.Fatalf("seized: got %s", result.SeizedWad)
	}
	if result.RepaidNative.Cmp(bigFromString(t, "15000000000000000000000")) != 0 {
		t.Fatalf("repaid native: got %s", result.RepaidNative)
	}
	if result.SeizedNative.Cmp(bigFromString(t, "26250000000000000000")) != 0 {
		t.Fatalf("seized native: got %s", result.SeizedNative)
	}
	// Remaining 23.75 ETH at 600 gives 11400 threshold-weighted against
	// 15000 of debt.
	if result.HealthFactorWad.Cmp(bigFromString(t, "760000000000000000")) != 0 {
		t.Fatalf("post health factor: got %s", result.HealthFactorWad)
	}

	debtPos, _ := engine.GetUserPosition("alice", "USD")
	if debtPos.BorrowWad.Cmp(bigFromString(t, "15000000000000000000000")) != 0 {
		t.Fatalf("remaining debt: got %s", debtPos.BorrowWad)
	}
	collPos, _ := engine.GetUserPosition("alice", "ETH")
	if collPos.SupplyWad.Cmp(bigFromString(t, "23750000000000000000")) != 0 {
		t.Fatalf("remaining collateral: got %s", collPos.SupplyWad)
	}
	collView, _ := engine.GetReserve("ETH")
	if collView.CashWad.Cmp(bigFromString(t, "23750000000000000000")) != 0 {
		t.Fatalf("collateral reserve cash: got %s", collView.CashWad)
	}
}

func TestLiquidationCappedByCloseFactor(t *testing.T) {
	engine, _ := newUnderwaterAccount(t)

	// Offering the full debt still settles only the close-factor share.
	result, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", bigFromString(t, "30000000000000000000000"))
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if result.RepaidWad.Cmp(bigFromString(t, "15000000000000000000000")) != 0 {
		t.Fatalf("repaid above close factor: got %s", result.RepaidWad)
	}
}

func TestLiquidationCappedByCollateralBalance(t *testing.T) {
	engine, prices := newUnderwaterAccount(t)
	// Crash hard enough that the bonus-adjusted seizure would exceed the
	// borrower's entire collateral.
	prices["ETH"] = bigFromString(t, "100000000000000000000")

	result, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", bigFromString(t, "15000000000000000000000"))
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if result.SeizedWad.Cmp(bigFromString(t, "50000000000000000000")) != 0 {
		t.Fatalf("seized: got %s, want the full 50 ETH", result.SeizedWad)
	}
	collPos, _ := engine.GetUserPosition("alice", "ETH")
	if collPos.SupplyScaled.Sign() != 0 {
		t.Fatalf("residual collateral: %s", collPos.SupplyScaled)
	}
}

func TestLiquidationRequiresUnsafePosition(t *testing.T) {
	engine, _, prices := newTestEngine(t)
	mustLend(t, engine, "whale", "USD", "100000000000000000000000")
	mustLend(t, engine, "alice", "ETH", "50000000000000000000")
	mustBorrow(t, engine, "alice", "USD", "30000000000000000000000")

	// Healthy at the original price.
	if _, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", big.NewInt(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("liquidate healthy account: got %v", err)
	}

	// At 750 the threshold-weighted collateral exactly equals the debt:
	// a health factor of exactly one is still safe.
	prices["ETH"] = bigFromString(t, "750000000000000000000")
	if _, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", big.NewInt(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("liquidate at health factor one: got %v", err)
	}

	// One more drop crosses the line.
	prices["ETH"] = bigFromString(t, "749000000000000000000")
	if _, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", bigFromString(t, "1000000000000000000000")); err != nil {
		t.Fatalf("liquidate just under the threshold: %v", err)
	}
}

func TestLiquidationGuards(t *testing.T) {
	engine, _ := newUnderwaterAccount(t)

	if _, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero repay: got %v", err)
	}
	if _, err := engine.LiquidationCall("bob", "alice", "DOGE", "ETH", big.NewInt(1)); !errors.Is(err, ErrAssetNotInitialized) {
		t.Fatalf("unknown debt asset: got %v", err)
	}
	if _, err := engine.LiquidationCall("bob", "ghost", "USD", "ETH", big.NewInt(1)); !errors.Is(err, ErrNotLiquidatable) {
		t.Fatalf("liquidate debt-free user: got %v", err)
	}
}

func TestLiquidationEmitsEvent(t *testing.T) {
	engine, _ := newUnderwaterAccount(t)
	recorder := &recordingEmitter{}
	engine.SetEmitter(recorder)

	if _, err := engine.LiquidationCall("bob", "alice", "USD", "ETH", bigFromString(t, "15000000000000000000000")); err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	evt := recorder.lastOfType(events.TypeLiquidation)
	if evt == nil {
		t.Fatal("no liquidation event emitted")
	}
	attrs := evt.Record().Attributes
	if attrs["liquidator"] != "bob" || attrs["user"] != "alice" {
		t.Fatalf("liquidation attributes: %v", attrs)
	}
	if attrs["repaid"] != "15000000000000000000000" {
		t.Fatalf("repaid attribute: %s", attrs["repaid"])
	}
}
