package pool

import "math/big"

// RiskParams groups the per-asset safety limits, all in basis points.
type RiskParams struct {
	// LTVBps is the maximum borrow power per unit of collateral at
	// origination.
	LTVBps uint64
	// LiqThresholdBps is the collateral ratio below which a position becomes
	// liquidatable.
	LiqThresholdBps uint64
	// LiqBonusBps is the discount granted to liquidators on seized
	// collateral.
	LiqBonusBps uint64
	// CloseFactorBps bounds the share of a position's debt a single
	// liquidation may repay.
	CloseFactorBps uint64
	// ReserveFactorBps is the share of borrow interest routed to protocol
	// reserves.
	ReserveFactorBps uint64
}

// ReserveConfig describes a reserve at initialization time. Everything here is
// immutable once the reserve exists.
type ReserveConfig struct {
	Asset      string
	Decimals   uint8
	Borrowable bool
	Risk       RiskParams
	Curve      CurveParams
	// BorrowCapWad bounds the aggregate outstanding debt. Zero or nil means
	// uncapped.
	BorrowCapWad *big.Int
}

// Reserve holds the mutable accounting state for one asset. All amounts are
// WAD, indices and rates are RAY. Indices never decrease; utilization is
// always derived, never stored.
type Reserve struct {
	Asset      string
	Decimals   uint8
	Borrowable bool
	Risk       RiskParams
	Curve      CurveParams

	BorrowCapWad *big.Int

	// CashWad is the undeployed liquidity held by the pool.
	CashWad *big.Int
	// TotalDebtScaled is the aggregate borrow principal recorded at index
	// time, i.e. scaled by the borrow index.
	TotalDebtScaled *big.Int
	// ProtocolFeesWad accumulates the reserve-factor share of borrow
	// interest.
	ProtocolFeesWad *big.Int

	LiquidityIndex *big.Int
	BorrowIndex    *big.Int

	LiquidityRateRay *big.Int
	BorrowRateRay    *big.Int

	// LastUpdate is the unix timestamp of the most recent accrual.
	LastUpdate int64
}

// Clone returns a deep copy so mutations can be staged and either committed or
// discarded atomically.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := &Reserve{
		Asset:      r.Asset,
		Decimals:   r.Decimals,
		Borrowable: r.Borrowable,
		Risk:       r.Risk,
		Curve:      r.Curve.Clone(),
		LastUpdate: r.LastUpdate,
	}
	if r.BorrowCapWad != nil {
		clone.BorrowCapWad = new(big.Int).Set(r.BorrowCapWad)
	}
	if r.CashWad != nil {
		clone.CashWad = new(big.Int).Set(r.CashWad)
	}
	if r.TotalDebtScaled != nil {
		clone.TotalDebtScaled = new(big.Int).Set(r.TotalDebtScaled)
	}
	if r.ProtocolFeesWad != nil {
		clone.ProtocolFeesWad = new(big.Int).Set(r.ProtocolFeesWad)
	}
	if r.LiquidityIndex != nil {
		clone.LiquidityIndex = new(big.Int).Set(r.LiquidityIndex)
	}
	if r.BorrowIndex != nil {
		clone.BorrowIndex = new(big.Int).Set(r.BorrowIndex)
	}
	if r.LiquidityRateRay != nil {
		clone.LiquidityRateRay = new(big.Int).Set(r.LiquidityRateRay)
	}
	if r.BorrowRateRay != nil {
		clone.BorrowRateRay = new(big.Int).Set(r.BorrowRateRay)
	}
	return clone
}

// currentTotalDebtWad reconstructs the aggregate debt at the current borrow
// index, rounded up.
func (r *Reserve) currentTotalDebtWad() *big.Int {
	if r.TotalDebtScaled == nil || r.TotalDebtScaled.Sign() == 0 {
		return big.NewInt(0)
	}
	return rayMulUp(r.TotalDebtScaled, r.BorrowIndex)
}

// Position is the per-(user, asset) scaled-balance record. Created lazily on
// first interaction and only ever zeroed, never deleted.
type Position struct {
	User  string
	Asset string
	// SupplyScaled and BorrowScaled are WAD balances scaled by the index in
	// force when they were written. Current value is always derived.
	SupplyScaled *big.Int
	BorrowScaled *big.Int
	// UseAsCollateral marks whether the supply balance counts toward the
	// account's collateral.
	UseAsCollateral bool
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{User: p.User, Asset: p.Asset, UseAsCollateral: p.UseAsCollateral}
	if p.SupplyScaled != nil {
		clone.SupplyScaled = new(big.Int).Set(p.SupplyScaled)
	}
	if p.BorrowScaled != nil {
		clone.BorrowScaled = new(big.Int).Set(p.BorrowScaled)
	}
	return clone
}

func (p *Position) supplyCurrentWad(liquidityIndex *big.Int) *big.Int {
	if p == nil || p.SupplyScaled == nil || p.SupplyScaled.Sign() == 0 {
		return big.NewInt(0)
	}
	return rayMulDown(p.SupplyScaled, liquidityIndex)
}

func (p *Position) borrowCurrentWad(borrowIndex *big.Int) *big.Int {
	if p == nil || p.BorrowScaled == nil || p.BorrowScaled.Sign() == 0 {
		return big.NewInt(0)
	}
	return rayMulUp(p.BorrowScaled, borrowIndex)
}

// ActionPauses exposes fine-grained switches for halting individual flows.
type ActionPauses struct {
	Lend      bool
	Withdraw  bool
	Borrow    bool
	Repay     bool
	Liquidate bool
}
