package pool

import (
	"math/big"
	"testing"
)

func testReserve(t *testing.T) *Reserve {
	t.Helper()
	return &Reserve{
		Asset:      "NHB",
		Decimals:   18,
		Borrowable: true,
		Risk: RiskParams{
			LTVBps:           7500,
			LiqThresholdBps:  8000,
			LiqBonusBps:      500,
			CloseFactorBps:   5000,
			ReserveFactorBps: 1000,
		},
		Curve:            testCurve(),
		CashWad:          bigFromString(t, "600000000000000000000000"),
		TotalDebtScaled:  bigFromString(t, "400000000000000000000000"),
		ProtocolFeesWad:  big.NewInt(0),
		LiquidityIndex:   new(big.Int).Set(ray),
		BorrowIndex:      new(big.Int).Set(ray),
		BorrowRateRay:    big.NewInt(2_000_000_000),
		LiquidityRateRay: big.NewInt(1_000_000_000),
		LastUpdate:       1_000_000,
	}
}

func TestAccrueAdvancesIndices(t *testing.T) {
	reserve := testReserve(t)

	if !reserve.accrue(1_003_600) {
		t.Fatal("accrue reported no change for elapsed time")
	}

	if reserve.LiquidityIndex.Cmp(bigFromString(t, "1000000000000003600000000000")) != 0 {
		t.Fatalf("liquidity index: got %s", reserve.LiquidityIndex)
	}
	if reserve.BorrowIndex.Cmp(bigFromString(t, "1000000000000007200000000000")) != 0 {
		t.Fatalf("borrow index: got %s", reserve.BorrowIndex)
	}
	if reserve.currentTotalDebtWad().Cmp(bigFromString(t, "400000000000002880000000")) != 0 {
		t.Fatalf("current debt: got %s", reserve.currentTotalDebtWad())
	}
	// 10% reserve factor on the 2880000000 wei of new interest.
	if reserve.ProtocolFeesWad.Cmp(big.NewInt(288_000_000)) != 0 {
		t.Fatalf("protocol fees: got %s", reserve.ProtocolFeesWad)
	}
	if reserve.LastUpdate != 1_003_600 {
		t.Fatalf("last update: got %d", reserve.LastUpdate)
	}

	// Rates are refreshed from the post-accrual balances.
	if reserve.BorrowRateRay.Cmp(big.NewInt(3_000_000_000)) != 0 {
		t.Fatalf("borrow rate: got %s", reserve.BorrowRateRay)
	}
	if reserve.LiquidityRateRay.Cmp(big.NewInt(1_080_000_000)) != 0 {
		t.Fatalf("liquidity rate: got %s", reserve.LiquidityRateRay)
	}
}

func TestAccrueZeroElapsedIsNoop(t *testing.T) {
	reserve := testReserve(t)
	snapshot := reserve.Clone()

	if reserve.accrue(1_000_000) {
		t.Fatal("accrue reported change for zero elapsed time")
	}
	if reserve.accrue(999_999) {
		t.Fatal("accrue reported change for a past timestamp")
	}
	if reserve.LiquidityIndex.Cmp(snapshot.LiquidityIndex) != 0 || reserve.BorrowIndex.Cmp(snapshot.BorrowIndex) != 0 {
		t.Fatal("indices moved without elapsed time")
	}
	if reserve.LastUpdate != snapshot.LastUpdate {
		t.Fatalf("last update moved to %d", reserve.LastUpdate)
	}
}

func TestAccrueIndicesNeverDecrease(t *testing.T) {
	reserve := testReserve(t)
	prevLiq := new(big.Int).Set(reserve.LiquidityIndex)
	prevBor := new(big.Int).Set(reserve.BorrowIndex)

	now := reserve.LastUpdate
	for i := 0; i < 10; i++ {
		now += 7200
		reserve.accrue(now)
		if reserve.LiquidityIndex.Cmp(prevLiq) < 0 {
			t.Fatalf("liquidity index decreased: %s < %s", reserve.LiquidityIndex, prevLiq)
		}
		if reserve.BorrowIndex.Cmp(prevBor) < 0 {
			t.Fatalf("borrow index decreased: %s < %s", reserve.BorrowIndex, prevBor)
		}
		prevLiq.Set(reserve.LiquidityIndex)
		prevBor.Set(reserve.BorrowIndex)
	}
}

func TestAccrueSplitEqualsWhole(t *testing.T) {
	// Two accruals at the same rate never yield less than one: simple
	// per-second compounding over a split interval includes the cross term.
	whole := testReserve(t)
	split := testReserve(t)
	// Freeze the rates so both paths compound identically.
	flat := CurveParams{BaseRateRay: big.NewInt(2_000_000_000)}
	whole.Curve = flat
	split.Curve = flat
	whole.Risk.ReserveFactorBps = 0
	split.Risk.ReserveFactorBps = 0

	whole.accrue(1_007_200)
	split.accrue(1_003_600)
	split.accrue(1_007_200)

	if split.BorrowIndex.Cmp(whole.BorrowIndex) < 0 {
		t.Fatalf("split accrual index %s below whole-interval index %s", split.BorrowIndex, whole.BorrowIndex)
	}
}
