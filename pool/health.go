package pool

import "math/big"

// AccountData aggregates a user's positions across every reserve into the
// values the risk checks operate on. All values are WAD.
type AccountData struct {
	// CollateralValueWad is the price-weighted value of collateral-enabled
	// supply balances.
	CollateralValueWad *big.Int
	// DebtValueWad is the price-weighted value of all outstanding debt.
	DebtValueWad *big.Int
	// HealthFactorWad is thresholdWeighted*WAD/debt; the max sentinel when
	// the account has no debt. Liquidatable when < 1 WAD.
	HealthFactorWad *big.Int
	// AvailableBorrowsWad is the remaining LTV-weighted borrow power.
	AvailableBorrowsWad *big.Int
}

// stagedState carries in-flight clones so health checks evaluate the
// operation's post-state before anything is committed.
type stagedState struct {
	reserves  map[string]*Reserve
	positions map[string]*Position
}

func stagedFor(reserve *Reserve, pos *Position) *stagedState {
	s := &stagedState{
		reserves:  map[string]*Reserve{reserve.Asset: reserve},
		positions: map[string]*Position{},
	}
	if pos != nil {
		s.positions[pos.Asset] = pos
	}
	return s
}

func (s *stagedState) reserve(asset string) (*Reserve, bool) {
	if s == nil {
		return nil, false
	}
	r, ok := s.reserves[asset]
	return r, ok
}

func (s *stagedState) position(asset string) (*Position, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.positions[asset]
	return p, ok
}

// accountDataLocked walks every reserve the user has touched. A missing price
// for any asset with a live position is a hard failure, never a zero
// substitution. Non-staged reserves are evaluated on accrued clones so the
// whole snapshot shares one timestamp.
func (e *Engine) accountDataLocked(user string, now int64, staged *stagedState) (AccountData, error) {
	collateral := big.NewInt(0)
	thresholdWeighted := big.NewInt(0)
	borrowPower := big.NewInt(0)
	debt := big.NewInt(0)

	merged := make(map[string]*Position)
	if byAsset, ok := e.positions[user]; ok {
		for asset, pos := range byAsset {
			merged[asset] = pos
		}
	}
	if staged != nil {
		for asset, pos := range staged.positions {
			merged[asset] = pos
		}
	}

	for asset, pos := range merged {
		hasSupply := pos.SupplyScaled != nil && pos.SupplyScaled.Sign() > 0
		hasBorrow := pos.BorrowScaled != nil && pos.BorrowScaled.Sign() > 0
		if !hasSupply && !hasBorrow {
			continue
		}

		reserve, ok := staged.reserve(asset)
		if !ok {
			stored, err := e.reserveLocked(asset)
			if err != nil {
				return AccountData{}, err
			}
			reserve = stored.Clone()
			reserve.accrue(now)
		}

		price, err := e.priceWadLocked(asset)
		if err != nil {
			return AccountData{}, err
		}

		if hasSupply && pos.UseAsCollateral {
			value := mulDivDown(pos.supplyCurrentWad(reserve.LiquidityIndex), price, wad)
			collateral.Add(collateral, value)
			thresholdWeighted.Add(thresholdWeighted, bpsMulDown(value, reserve.Risk.LiqThresholdBps))
			borrowPower.Add(borrowPower, bpsMulDown(value, reserve.Risk.LTVBps))
		}
		if hasBorrow {
			debt.Add(debt, mulDivUp(pos.borrowCurrentWad(reserve.BorrowIndex), price, wad))
		}
	}

	health := new(big.Int).Set(maxHealthFactor)
	if debt.Sign() > 0 {
		health = mulDivDown(thresholdWeighted, wad, debt)
	}
	available := new(big.Int).Sub(borrowPower, debt)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return AccountData{
		CollateralValueWad:  collateral,
		DebtValueWad:        debt,
		HealthFactorWad:     health,
		AvailableBorrowsWad: available,
	}, nil
}

// GetAccountData reports the user's aggregate collateral, debt and health
// factor at the current time without mutating any reserve.
func (e *Engine) GetAccountData(user string) (AccountData, error) {
	if e == nil {
		return AccountData{}, ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountDataLocked(user, e.nowUnix(), nil)
}
