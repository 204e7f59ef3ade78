package pool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"lendpool/core/events"
)

// PriceSource resolves the WAD price of one native asset unit. Prices are
// borrowed per operation and never cached across mutations.
type PriceSource interface {
	GetPrice(asset string) (*big.Int, error)
}

// TransferableAsset is the black-box debit/credit collaborator that settles
// native-unit movements. A failure aborts the surrounding operation.
type TransferableAsset interface {
	TransferIn(from string, amountNative *big.Int) error
	TransferOut(to string, amountNative *big.Int) error
}

// borrowDustScaled is the epsilon below which a residual scaled borrow
// balance snaps to exactly zero. One scaled unit is ~1e-27 of a token, so
// the threshold sits far below any representable native amount.
var borrowDustScaled = big.NewInt(1_000_000)

// Engine owns the pool state: every reserve and every position live in
// explicit collections behind one mutex. One logical operation runs to
// completion with no interleaving; mutations are staged on clones and
// committed only after the external transfer succeeds, so a failure anywhere
// leaves the pool untouched.
type Engine struct {
	mu        sync.Mutex
	reserves  map[string]*Reserve
	positions map[string]map[string]*Position

	oracle  PriceSource
	assets  map[string]TransferableAsset
	emitter events.Emitter
	pauses  ActionPauses
	now     func() time.Time
}

// NewEngine constructs a pool engine backed by the given price source.
func NewEngine(oracle PriceSource) *Engine {
	return &Engine{
		reserves:  make(map[string]*Reserve),
		positions: make(map[string]map[string]*Position),
		oracle:    oracle,
		assets:    make(map[string]TransferableAsset),
		emitter:   events.NoopEmitter{},
		now:       time.Now,
	}
}

// SetEmitter wires the engine to a downstream event consumer.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses replaces the per-action pause switches.
func (e *Engine) SetPauses(p ActionPauses) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauses = p
}

// SetClock overrides the time source. Intended for tests and deterministic
// replays.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// RegisterAsset attaches the settlement backend for an asset. Reserves
// without a backend settle externally and only the internal accounting moves.
func (e *Engine) RegisterAsset(asset string, backend TransferableAsset) {
	if e == nil || backend == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assets[asset] = backend
}

func (e *Engine) nowUnix() int64 { return e.now().UTC().Unix() }

// InitReserve creates a reserve. Configuration is immutable afterwards except
// for the accrual-driven fields.
func (e *Engine) InitReserve(cfg ReserveConfig) error {
	if e == nil {
		return ErrAssetNotInitialized
	}
	if cfg.Asset == "" {
		return fmt.Errorf("pool: reserve asset identifier required")
	}
	if cfg.Decimals > 18 {
		return fmt.Errorf("pool: reserve %s: decimals above 18 not supported", cfg.Asset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.reserves[cfg.Asset]; ok {
		return ErrAssetAlreadyInitialized
	}
	reserve := &Reserve{
		Asset:           cfg.Asset,
		Decimals:        cfg.Decimals,
		Borrowable:      cfg.Borrowable,
		Risk:            cfg.Risk,
		Curve:           cfg.Curve.Clone(),
		CashWad:         big.NewInt(0),
		TotalDebtScaled: big.NewInt(0),
		ProtocolFeesWad: big.NewInt(0),
		LiquidityIndex:  new(big.Int).Set(ray),
		BorrowIndex:     new(big.Int).Set(ray),
		LastUpdate:      e.nowUnix(),
	}
	if cfg.BorrowCapWad != nil && cfg.BorrowCapWad.Sign() > 0 {
		reserve.BorrowCapWad = new(big.Int).Set(cfg.BorrowCapWad)
	}
	reserve.BorrowRateRay, reserve.LiquidityRateRay = GetRates(reserve.CashWad, big.NewInt(0), cfg.Risk.ReserveFactorBps, reserve.Curve)
	e.reserves[cfg.Asset] = reserve
	return nil
}

func (e *Engine) reserveLocked(asset string) (*Reserve, error) {
	reserve, ok := e.reserves[asset]
	if !ok {
		return nil, ErrAssetNotInitialized
	}
	return reserve, nil
}

// positionLocked returns the stored position or a lazily created zero record.
// The returned value is never the stored pointer; callers mutate the clone
// and commit it explicitly.
func (e *Engine) positionLocked(user, asset string) *Position {
	if byAsset, ok := e.positions[user]; ok {
		if pos, ok := byAsset[asset]; ok {
			return pos.Clone()
		}
	}
	return &Position{
		User:         user,
		Asset:        asset,
		SupplyScaled: big.NewInt(0),
		BorrowScaled: big.NewInt(0),
	}
}

func (e *Engine) commitPositionLocked(pos *Position) {
	byAsset, ok := e.positions[pos.User]
	if !ok {
		byAsset = make(map[string]*Position)
		e.positions[pos.User] = byAsset
	}
	byAsset[pos.Asset] = pos
}

func (e *Engine) priceWadLocked(asset string) (*big.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", ErrPriceUnavailable)
	}
	price, err := e.oracle.GetPrice(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, asset, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrPriceUnavailable, asset)
	}
	return price, nil
}

func (e *Engine) transferIn(asset, from string, amountNative *big.Int) error {
	backend, ok := e.assets[asset]
	if !ok || amountNative.Sign() == 0 {
		return nil
	}
	if err := backend.TransferIn(from, amountNative); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, asset, err)
	}
	return nil
}

func (e *Engine) transferOut(asset, to string, amountNative *big.Int) error {
	backend, ok := e.assets[asset]
	if !ok || amountNative.Sign() == 0 {
		return nil
	}
	if err := backend.TransferOut(to, amountNative); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, asset, err)
	}
	return nil
}

func (e *Engine) emitReserveUpdated(r *Reserve) {
	e.emitter.Emit(events.ReserveUpdated{
		Asset:            r.Asset,
		UtilizationWad:   Utilization(r.CashWad, r.currentTotalDebtWad()),
		BorrowRateRay:    new(big.Int).Set(r.BorrowRateRay),
		LiquidityRateRay: new(big.Int).Set(r.LiquidityRateRay),
		BorrowIndexRay:   new(big.Int).Set(r.BorrowIndex),
		LiquidityIndex:   new(big.Int).Set(r.LiquidityIndex),
	})
}

// Accrue advances the reserve to the current time. Exposed so external
// callers can force a fresh snapshot before reading.
func (e *Engine) Accrue(asset string) error {
	if e == nil {
		return ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	reserve, err := e.reserveLocked(asset)
	if err != nil {
		return err
	}
	if reserve.accrue(e.nowUnix()) {
		e.emitReserveUpdated(reserve)
	}
	return nil
}

// Lend supplies liquidity to the reserve and credits the supplier's scaled
// balance. Returns the scaled amount credited. The first supply of an asset
// enables it as collateral; SetCollateralFlag opts out.
func (e *Engine) Lend(user, asset string, amountNative *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrAssetNotInitialized
	}
	if amountNative == nil || amountNative.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauses.Lend {
		return nil, ErrPaused
	}
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return nil, err
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	amountWad := nativeToWad(amountNative, reserve.Decimals)
	// Credit rounds down: the protocol never over-credits supply.
	deltaScaled := rayDivDown(amountWad, reserve.LiquidityIndex)

	pos := e.positionLocked(user, asset)
	fresh := pos.SupplyScaled.Sign() == 0 && pos.BorrowScaled.Sign() == 0
	pos.SupplyScaled.Add(pos.SupplyScaled, deltaScaled)
	if fresh && !pos.UseAsCollateral {
		pos.UseAsCollateral = true
	}
	reserve.CashWad.Add(reserve.CashWad, amountWad)

	if err := e.transferIn(asset, user, amountNative); err != nil {
		return nil, err
	}

	e.reserves[asset] = reserve
	e.commitPositionLocked(pos)
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.Deposit{Asset: asset, User: user, AmountWad: amountWad})
	return deltaScaled, nil
}

// Withdraw releases supplied liquidity back to the user. Requests above the
// current balance are capped to it, never rejected, so index rounding can
// never strand an unwithdrawable remainder. Returns the native amount paid
// out.
func (e *Engine) Withdraw(user, asset string, requestedNative *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrAssetNotInitialized
	}
	if requestedNative == nil || requestedNative.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauses.Withdraw {
		return nil, ErrPaused
	}
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return nil, err
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	pos := e.positionLocked(user, asset)
	available := pos.supplyCurrentWad(reserve.LiquidityIndex)
	if available.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	amountWad := minBig(nativeToWad(requestedNative, reserve.Decimals), available)
	if amountWad.Cmp(reserve.CashWad) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	// The decrement rounds up so the scaled balance never under-removes.
	deltaScaled := rayDivUp(amountWad, reserve.LiquidityIndex)
	if deltaScaled.Cmp(pos.SupplyScaled) > 0 {
		deltaScaled = new(big.Int).Set(pos.SupplyScaled)
	}
	pos.SupplyScaled.Sub(pos.SupplyScaled, deltaScaled)
	if pos.SupplyScaled.Sign() > 0 && pos.supplyCurrentWad(reserve.LiquidityIndex).Sign() == 0 {
		// Residue below one representable unit snaps to zero.
		pos.SupplyScaled.SetInt64(0)
	}
	reserve.CashWad.Sub(reserve.CashWad, amountWad)

	if pos.UseAsCollateral {
		data, err := e.accountDataLocked(user, now, stagedFor(reserve, pos))
		if err != nil {
			return nil, err
		}
		if data.DebtValueWad.Sign() > 0 && data.HealthFactorWad.Cmp(wad) < 0 {
			return nil, ErrHealthFactorTooLow
		}
	}

	paidNative := wadToNativeDown(amountWad, reserve.Decimals)
	if err := e.transferOut(asset, user, paidNative); err != nil {
		return nil, err
	}

	e.reserves[asset] = reserve
	e.commitPositionLocked(pos)
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.Withdraw{Asset: asset, User: user, AmountWad: amountWad})
	return paidNative, nil
}

// Borrow draws debt against the caller's collateral. The resulting position
// must stay healthy; on any failure no state changes.
func (e *Engine) Borrow(user, asset string, amountNative *big.Int) error {
	if e == nil {
		return ErrAssetNotInitialized
	}
	if amountNative == nil || amountNative.Sign() <= 0 {
		return ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauses.Borrow {
		return ErrPaused
	}
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return err
	}
	if !stored.Borrowable {
		return ErrAssetNotBorrowable
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	amountWad := nativeToWad(amountNative, reserve.Decimals)
	if amountWad.Cmp(reserve.CashWad) > 0 {
		return ErrInsufficientLiquidity
	}
	if reserve.BorrowCapWad != nil {
		projected := new(big.Int).Add(reserve.currentTotalDebtWad(), amountWad)
		if projected.Cmp(reserve.BorrowCapWad) > 0 {
			return ErrBorrowCapExceeded
		}
	}

	// Debt rounds up: the protocol never under-counts what it is owed.
	deltaScaled := rayDivUp(amountWad, reserve.BorrowIndex)
	pos := e.positionLocked(user, asset)
	pos.BorrowScaled.Add(pos.BorrowScaled, deltaScaled)
	reserve.TotalDebtScaled.Add(reserve.TotalDebtScaled, deltaScaled)
	reserve.CashWad.Sub(reserve.CashWad, amountWad)

	data, err := e.accountDataLocked(user, now, stagedFor(reserve, pos))
	if err != nil {
		return err
	}
	if data.HealthFactorWad.Cmp(wad) < 0 {
		return ErrHealthFactorTooLow
	}

	paidNative := wadToNativeDown(amountWad, reserve.Decimals)
	if err := e.transferOut(asset, user, paidNative); err != nil {
		return err
	}

	e.reserves[asset] = reserve
	e.commitPositionLocked(pos)
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.Borrow{Asset: asset, User: user, AmountWad: amountWad})
	return nil
}

// Repay pays down onBehalfOf's debt with funds from payer. The amount is
// capped to the current debt, so passing any amount at or above it resolves
// to exactly clearing the position regardless of interest accrued since the
// caller last read it. Returns the repaid native amount and whether the debt
// is now zero.
func (e *Engine) Repay(payer, onBehalfOf, asset string, amountNative *big.Int) (*big.Int, bool, error) {
	if amountNative == nil || amountNative.Sign() <= 0 {
		return nil, false, ErrZeroAmount
	}
	return e.repay(payer, onBehalfOf, asset, amountNative)
}

// RepayFull clears onBehalfOf's entire current debt, interest included. This
// is the explicit alternative to passing a maximal sentinel amount.
func (e *Engine) RepayFull(payer, onBehalfOf, asset string) (*big.Int, bool, error) {
	return e.repay(payer, onBehalfOf, asset, nil)
}

func (e *Engine) repay(payer, onBehalfOf, asset string, amountNative *big.Int) (*big.Int, bool, error) {
	if e == nil {
		return nil, false, ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pauses.Repay {
		return nil, false, ErrPaused
	}
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return nil, false, err
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	pos := e.positionLocked(onBehalfOf, asset)
	currentDebt := pos.borrowCurrentWad(reserve.BorrowIndex)
	if currentDebt.Sign() == 0 {
		return nil, false, ErrNoDebt
	}

	actualWad := currentDebt
	if amountNative != nil {
		actualWad = minBig(nativeToWad(amountNative, reserve.Decimals), currentDebt)
	}
	if actualWad.Sign() == 0 {
		return nil, false, ErrZeroAmount
	}

	before := new(big.Int).Set(pos.BorrowScaled)
	deltaScaled := rayDivUp(actualWad, reserve.BorrowIndex)
	if deltaScaled.Cmp(pos.BorrowScaled) > 0 {
		deltaScaled = new(big.Int).Set(pos.BorrowScaled)
	}
	pos.BorrowScaled.Sub(pos.BorrowScaled, deltaScaled)
	if pos.BorrowScaled.Sign() > 0 && pos.BorrowScaled.Cmp(borrowDustScaled) < 0 {
		pos.BorrowScaled.SetInt64(0)
	}
	removedScaled := new(big.Int).Sub(before, pos.BorrowScaled)
	if removedScaled.Cmp(reserve.TotalDebtScaled) > 0 {
		reserve.TotalDebtScaled.SetInt64(0)
	} else {
		reserve.TotalDebtScaled.Sub(reserve.TotalDebtScaled, removedScaled)
	}
	reserve.CashWad.Add(reserve.CashWad, actualWad)

	paidNative := wadToNativeUp(actualWad, reserve.Decimals)
	if err := e.transferIn(asset, payer, paidNative); err != nil {
		return nil, false, err
	}

	isFull := pos.BorrowScaled.Sign() == 0
	e.reserves[asset] = reserve
	e.commitPositionLocked(pos)
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.Repay{Asset: asset, User: onBehalfOf, Payer: payer, AmountWad: actualWad, IsFull: isFull})
	return paidNative, isFull, nil
}

// SetCollateralFlag toggles whether the user's supply in asset backs their
// debt. Disabling is refused when it would leave the account unhealthy.
func (e *Engine) SetCollateralFlag(user, asset string, enabled bool) error {
	if e == nil {
		return ErrAssetNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return err
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	pos := e.positionLocked(user, asset)
	if pos.UseAsCollateral == enabled {
		return nil
	}
	pos.UseAsCollateral = enabled

	if !enabled {
		data, err := e.accountDataLocked(user, now, stagedFor(reserve, pos))
		if err != nil {
			return err
		}
		if data.DebtValueWad.Sign() > 0 && data.HealthFactorWad.Cmp(wad) < 0 {
			return ErrHealthFactorTooLow
		}
	}

	e.reserves[asset] = reserve
	e.commitPositionLocked(pos)
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.CollateralFlag{Asset: asset, User: user, Enabled: enabled})
	return nil
}

// WithdrawProtocolFees pays accrued reserve-factor interest out of the
// reserve to the recipient. The amount is capped by both the fee bucket and
// the available cash.
func (e *Engine) WithdrawProtocolFees(asset, recipient string, amountNative *big.Int) (*big.Int, error) {
	if e == nil {
		return nil, ErrAssetNotInitialized
	}
	if amountNative == nil || amountNative.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored, err := e.reserveLocked(asset)
	if err != nil {
		return nil, err
	}

	now := e.nowUnix()
	reserve := stored.Clone()
	accrued := reserve.accrue(now)

	amountWad := minBig(nativeToWad(amountNative, reserve.Decimals), reserve.ProtocolFeesWad)
	if amountWad.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if amountWad.Cmp(reserve.CashWad) > 0 {
		return nil, ErrInsufficientLiquidity
	}
	reserve.ProtocolFeesWad.Sub(reserve.ProtocolFeesWad, amountWad)
	reserve.CashWad.Sub(reserve.CashWad, amountWad)

	paidNative := wadToNativeDown(amountWad, reserve.Decimals)
	if err := e.transferOut(asset, recipient, paidNative); err != nil {
		return nil, err
	}

	e.reserves[asset] = reserve
	if accrued {
		e.emitReserveUpdated(reserve)
	}
	e.emitter.Emit(events.FeesWithdrawn{Asset: asset, Recipient: recipient, AmountWad: amountWad})
	return paidNative, nil
}
