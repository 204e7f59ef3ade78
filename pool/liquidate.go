package pool

import (
	"math/big"

	"lendpool/core/events"
)

// LiquidationResult reports the settled amounts of a liquidation call and the
// borrower's health factor after settlement.
type LiquidationResult struct {
	RepaidWad       *big.Int
	RepaidNative    *big.Int
	SeizedWad       *big.Int
	SeizedNative    *big.Int
	HealthFactorWad *big.Int
}

// LiquidationCall lets a third party repay part of an unsafe borrower's debt
// in exchange for discounted collateral. The repayment is bounded by the
// close factor, the seizure by the collateral the borrower actually holds:
// any shortfall lands on the liquidator, never the protocol.
func (e *Engine) LiquidationCall(liquidator, user, debtAsset, collateralAsset string, repayNative *big.Int) (LiquidationResult, error) {
	if e == nil {
		return LiquidationResult{}, ErrAssetNotInitialized
	}
	if repayNative == nil || repayNative.Sign() <= 0 {
		return LiquidationResult{}, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauses.Liquidate {
		return LiquidationResult{}, ErrPaused
	}

	storedDebt, err := e.reserveLocked(debtAsset)
	if err != nil {
		return LiquidationResult{}, err
	}
	storedColl, err := e.reserveLocked(collateralAsset)
	if err != nil {
		return LiquidationResult{}, err
	}

	now := e.nowUnix()
	debtRes := storedDebt.Clone()
	debtRes.accrue(now)
	collRes := debtRes
	if collateralAsset != debtAsset {
		collRes = storedColl.Clone()
		collRes.accrue(now)
	}

	debtPos := e.positionLocked(user, debtAsset)
	collPos := debtPos
	if collateralAsset != debtAsset {
		collPos = e.positionLocked(user, collateralAsset)
	}

	staged := stagedFor(debtRes, debtPos)
	staged.reserves[collRes.Asset] = collRes
	staged.positions[collPos.Asset] = collPos

	data, err := e.accountDataLocked(user, now, staged)
	if err != nil {
		return LiquidationResult{}, err
	}
	if data.DebtValueWad.Sign() == 0 || data.HealthFactorWad.Cmp(wad) >= 0 {
		return LiquidationResult{}, ErrNotLiquidatable
	}

	currentDebt := debtPos.borrowCurrentWad(debtRes.BorrowIndex)
	if currentDebt.Sign() == 0 {
		return LiquidationResult{}, ErrNoDebt
	}
	maxRepay := bpsMulDown(currentDebt, debtRes.Risk.CloseFactorBps)
	actualWad := minBig(nativeToWad(repayNative, debtRes.Decimals), maxRepay)
	if actualWad.Sign() == 0 {
		return LiquidationResult{}, ErrZeroAmount
	}

	// Debt side settles exactly like a repay.
	before := new(big.Int).Set(debtPos.BorrowScaled)
	deltaScaled := rayDivUp(actualWad, debtRes.BorrowIndex)
	if deltaScaled.Cmp(debtPos.BorrowScaled) > 0 {
		deltaScaled = new(big.Int).Set(debtPos.BorrowScaled)
	}
	debtPos.BorrowScaled.Sub(debtPos.BorrowScaled, deltaScaled)
	if debtPos.BorrowScaled.Sign() > 0 && debtPos.BorrowScaled.Cmp(borrowDustScaled) < 0 {
		debtPos.BorrowScaled.SetInt64(0)
	}
	removedScaled := new(big.Int).Sub(before, debtPos.BorrowScaled)
	if removedScaled.Cmp(debtRes.TotalDebtScaled) > 0 {
		debtRes.TotalDebtScaled.SetInt64(0)
	} else {
		debtRes.TotalDebtScaled.Sub(debtRes.TotalDebtScaled, removedScaled)
	}
	debtRes.CashWad.Add(debtRes.CashWad, actualWad)

	debtPrice, err := e.priceWadLocked(debtAsset)
	if err != nil {
		return LiquidationResult{}, err
	}
	collPrice, err := e.priceWadLocked(collateralAsset)
	if err != nil {
		return LiquidationResult{}, err
	}

	// Seized collateral is owed by the protocol, so every step rounds down.
	seizeWad := mulDivDown(actualWad, debtPrice, collPrice)
	seizeWad = mulDivDown(seizeWad, new(big.Int).SetUint64(10_000+collRes.Risk.LiqBonusBps), basisPoints)
	collBalance := collPos.supplyCurrentWad(collRes.LiquidityIndex)
	seizeWad = minBig(seizeWad, collBalance)
	if seizeWad.Cmp(collRes.CashWad) > 0 {
		return LiquidationResult{}, ErrInsufficientLiquidity
	}

	seizeScaled := rayDivUp(seizeWad, collRes.LiquidityIndex)
	if seizeScaled.Cmp(collPos.SupplyScaled) > 0 {
		seizeScaled = new(big.Int).Set(collPos.SupplyScaled)
	}
	collPos.SupplyScaled.Sub(collPos.SupplyScaled, seizeScaled)
	if collPos.SupplyScaled.Sign() > 0 && collPos.supplyCurrentWad(collRes.LiquidityIndex).Sign() == 0 {
		collPos.SupplyScaled.SetInt64(0)
	}
	collRes.CashWad.Sub(collRes.CashWad, seizeWad)

	after, err := e.accountDataLocked(user, now, staged)
	if err != nil {
		return LiquidationResult{}, err
	}

	repaidNative := wadToNativeUp(actualWad, debtRes.Decimals)
	seizedNative := wadToNativeDown(seizeWad, collRes.Decimals)
	if err := e.transferIn(debtAsset, liquidator, repaidNative); err != nil {
		return LiquidationResult{}, err
	}
	if err := e.transferOut(collateralAsset, liquidator, seizedNative); err != nil {
		return LiquidationResult{}, err
	}

	e.reserves[debtAsset] = debtRes
	e.reserves[collateralAsset] = collRes
	e.commitPositionLocked(debtPos)
	if collateralAsset != debtAsset {
		e.commitPositionLocked(collPos)
	}
	e.emitReserveUpdated(debtRes)
	if collateralAsset != debtAsset {
		e.emitReserveUpdated(collRes)
	}
	e.emitter.Emit(events.Liquidation{
		DebtAsset:       debtAsset,
		CollateralAsset: collateralAsset,
		User:            user,
		Liquidator:      liquidator,
		RepaidWad:       actualWad,
		SeizedWad:       seizeWad,
		HealthFactorWad: after.HealthFactorWad,
	})
	return LiquidationResult{
		RepaidWad:       actualWad,
		RepaidNative:    repaidNative,
		SeizedWad:       seizeWad,
		SeizedNative:    seizedNative,
		HealthFactorWad: after.HealthFactorWad,
	}, nil
}
