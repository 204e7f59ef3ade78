package pool

import "math/big"

// accrue advances the reserve's indices and rates to now. Idempotent: zero
// elapsed time leaves every field untouched and reports false. Callers run
// this before any balance read or write on the reserve, at most once per
// logical operation.
func (r *Reserve) accrue(now int64) bool {
	if now <= r.LastUpdate {
		return false
	}
	elapsed := new(big.Int).SetInt64(now - r.LastUpdate)

	debtBefore := r.currentTotalDebtWad()

	// Simple per-second compounding in RAY precision. The factor is >= RAY,
	// so flooring keeps both indices monotonically non-decreasing.
	liqFactor := new(big.Int).Mul(r.LiquidityRateRay, elapsed)
	liqFactor.Add(liqFactor, ray)
	r.LiquidityIndex = rayMulDown(r.LiquidityIndex, liqFactor)

	borrowFactor := new(big.Int).Mul(r.BorrowRateRay, elapsed)
	borrowFactor.Add(borrowFactor, ray)
	r.BorrowIndex = rayMulDown(r.BorrowIndex, borrowFactor)

	// Route the reserve-factor share of the newly accrued borrow interest to
	// the protocol fee bucket. Principal itself stays scaled.
	currentDebt := r.currentTotalDebtWad()
	if interest := new(big.Int).Sub(currentDebt, debtBefore); interest.Sign() > 0 && r.Risk.ReserveFactorBps > 0 {
		fee := bpsMulDown(interest, r.Risk.ReserveFactorBps)
		if fee.Sign() > 0 {
			r.ProtocolFeesWad.Add(r.ProtocolFeesWad, fee)
		}
	}

	r.BorrowRateRay, r.LiquidityRateRay = GetRates(r.CashWad, currentDebt, r.Risk.ReserveFactorBps, r.Curve)
	r.LastUpdate = now
	return true
}
