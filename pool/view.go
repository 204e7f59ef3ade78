package pool

import (
	"math/big"
	"sort"
)

// ReserveView is the externally visible snapshot of a reserve, evaluated at
// the current time without committing the accrual.
type ReserveView struct {
	Asset            string     `json:"asset"`
	Decimals         uint8      `json:"decimals"`
	Borrowable       bool       `json:"borrowable"`
	CashWad          *big.Int   `json:"cash"`
	TotalDebtWad     *big.Int   `json:"totalDebt"`
	ProtocolFeesWad  *big.Int   `json:"protocolFees"`
	UtilizationWad   *big.Int   `json:"utilization"`
	LiquidityIndex   *big.Int   `json:"liquidityIndex"`
	BorrowIndex      *big.Int   `json:"borrowIndex"`
	LiquidityRateRay *big.Int   `json:"liquidityRate"`
	BorrowRateRay    *big.Int   `json:"borrowRate"`
	Risk             RiskParams `json:"riskParams"`
	LastUpdate       int64      `json:"lastUpdate"`
}

// PositionView is the externally visible snapshot of a user's position in one
// reserve, with scaled balances resolved to current values.
type PositionView struct {
	User            string   `json:"user"`
	Asset           string   `json:"asset"`
	SupplyWad       *big.Int `json:"supply"`
	BorrowWad       *big.Int `json:"borrow"`
	SupplyScaled    *big.Int `json:"supplyScaled"`
	BorrowScaled    *big.Int `json:"borrowScaled"`
	UseAsCollateral bool     `json:"useAsCollateral"`
}

func reserveView(r *Reserve) ReserveView {
	debt := r.currentTotalDebtWad()
	return ReserveView{
		Asset:            r.Asset,
		Decimals:         r.Decimals,
		Borrowable:       r.Borrowable,
		CashWad:          new(big.Int).Set(r.CashWad),
		TotalDebtWad:     debt,
		ProtocolFeesWad:  new(big.Int).Set(r.ProtocolFeesWad),
		UtilizationWad:   Utilization(r.CashWad, debt),
		LiquidityIndex:   new(big.Int).Set(r.LiquidityIndex),
		BorrowIndex:      new(big.Int).Set(r.BorrowIndex),
		LiquidityRateRay: new(big.Int).Set(r.LiquidityRateRay),
		BorrowRateRay:    new(big.Int).Set(r.BorrowRateRay),
		Risk:             r.Risk,
		LastUpdate:       r.LastUpdate,
	}
}

// GetReserve returns the reserve snapshot projected to the current time.
func (e *Engine) GetReserve(asset string) (ReserveView, error) {
	if e == nil {
		return ReserveView{}, ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return ReserveView{}, err
	}
	reserve := stored.Clone()
	reserve.accrue(e.nowUnix())
	return reserveView(reserve), nil
}

// ListReserves returns snapshots for every initialized reserve, ordered by
// asset identifier.
func (e *Engine) ListReserves() []ReserveView {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.nowUnix()
	out := make([]ReserveView, 0, len(e.reserves))
	for _, stored := range e.reserves {
		reserve := stored.Clone()
		reserve.accrue(now)
		out = append(out, reserveView(reserve))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// GetUserPosition resolves the user's scaled balances in one reserve to
// current values at the current time.
func (e *Engine) GetUserPosition(user, asset string) (PositionView, error) {
	if e == nil {
		return PositionView{}, ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return PositionView{}, err
	}
	reserve := stored.Clone()
	reserve.accrue(e.nowUnix())
	pos := e.positionLocked(user, asset)
	return PositionView{
		User:            user,
		Asset:           asset,
		SupplyWad:       pos.supplyCurrentWad(reserve.LiquidityIndex),
		BorrowWad:       pos.borrowCurrentWad(reserve.BorrowIndex),
		SupplyScaled:    new(big.Int).Set(pos.SupplyScaled),
		BorrowScaled:    new(big.Int).Set(pos.BorrowScaled),
		UseAsCollateral: pos.UseAsCollateral,
	}, nil
}
