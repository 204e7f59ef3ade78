package pool

import "math/big"

// CurveParams shapes how borrow rates react to utilization. Rates are
// expressed in RAY per second so that accrual stays pure integer arithmetic.
type CurveParams struct {
	// OptimalUtilizationBps is the kink point of the curve in basis points.
	OptimalUtilizationBps uint64
	// BaseRateRay is the borrow rate at zero utilization.
	BaseRateRay *big.Int
	// Slope1Ray is the rate increase applied across [0, optimal].
	Slope1Ray *big.Int
	// Slope2Ray is the additional increase applied beyond the kink.
	Slope2Ray *big.Int
}

// Clone returns a deep copy of the curve parameters.
func (c CurveParams) Clone() CurveParams {
	clone := CurveParams{OptimalUtilizationBps: c.OptimalUtilizationBps}
	if c.BaseRateRay != nil {
		clone.BaseRateRay = new(big.Int).Set(c.BaseRateRay)
	}
	if c.Slope1Ray != nil {
		clone.Slope1Ray = new(big.Int).Set(c.Slope1Ray)
	}
	if c.Slope2Ray != nil {
		clone.Slope2Ray = new(big.Int).Set(c.Slope2Ray)
	}
	return clone
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// Utilization computes debt*WAD/(cash+debt) clamped to [0, WAD]. Zero debt is
// defined as zero utilization regardless of cash.
func Utilization(cashWad, debtWad *big.Int) *big.Int {
	if debtWad == nil || debtWad.Sign() == 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Add(zeroIfNil(cashWad), debtWad)
	if total.Sign() == 0 {
		return big.NewInt(0)
	}
	u := mulDivDown(debtWad, wad, total)
	if u.Cmp(wad) > 0 {
		u.Set(wad)
	}
	return u
}

// GetRates derives the borrow and supply rates for the given reserve snapshot.
// Pure: no state is read or written.
//
// Below the kink the borrow rate climbs linearly from base to base+slope1;
// beyond it slope2 takes over scaled by the excess utilization. Both branches
// evaluate to exactly base+slope1 at the kink. A zero optimal utilization
// forces the second branch for the whole range.
func GetRates(cashWad, debtWad *big.Int, reserveFactorBps uint64, curve CurveParams) (borrowRateRay, supplyRateRay *big.Int) {
	util := Utilization(cashWad, debtWad)
	optimalWad := mulDivDown(new(big.Int).SetUint64(curve.OptimalUtilizationBps), wad, basisPoints)

	borrowRateRay = new(big.Int).Set(zeroIfNil(curve.BaseRateRay))
	if optimalWad.Sign() > 0 && util.Cmp(optimalWad) <= 0 {
		borrowRateRay.Add(borrowRateRay, mulDivDown(zeroIfNil(curve.Slope1Ray), util, optimalWad))
	} else {
		borrowRateRay.Add(borrowRateRay, zeroIfNil(curve.Slope1Ray))
		denom := new(big.Int).Sub(wad, optimalWad)
		if denom.Sign() > 0 {
			excess := new(big.Int).Sub(util, optimalWad)
			if excess.Sign() < 0 {
				excess.SetInt64(0)
			}
			borrowRateRay.Add(borrowRateRay, mulDivDown(zeroIfNil(curve.Slope2Ray), excess, denom))
		}
	}

	if reserveFactorBps > 10_000 {
		reserveFactorBps = 10_000
	}
	supplyRateRay = mulDivDown(borrowRateRay, util, wad)
	supplyRateRay = bpsMulDown(supplyRateRay, 10_000-reserveFactorBps)
	return borrowRateRay, supplyRateRay
}
