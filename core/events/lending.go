package events

import (
	"math/big"
	"strings"
)

const (
	// TypeReserveUpdated is emitted after every accrual that moved state.
	TypeReserveUpdated = "lending.reserveUpdated"
	// TypeDeposit is emitted when liquidity is supplied to a reserve.
	TypeDeposit = "lending.deposit"
	// TypeWithdraw is emitted when supplied liquidity is withdrawn.
	TypeWithdraw = "lending.withdraw"
	// TypeBorrow is emitted when debt is drawn against collateral.
	TypeBorrow = "lending.borrow"
	// TypeRepay is emitted when debt is repaid, fully or partially.
	TypeRepay = "lending.repay"
	// TypeCollateralFlag is emitted when a supply toggles collateral usage.
	TypeCollateralFlag = "lending.collateralFlag"
	// TypeLiquidation is emitted after a liquidation call settles.
	TypeLiquidation = "lending.liquidation"
	// TypeFeesWithdrawn is emitted when protocol fees leave the reserve.
	TypeFeesWithdrawn = "lending.feesWithdrawn"
)

func setAmount(attrs map[string]string, key string, value *big.Int) {
	if value == nil {
		attrs[key] = "0"
		return
	}
	attrs[key] = value.String()
}

func setAsset(attrs map[string]string, key, asset string) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		asset = "UNKNOWN"
	}
	attrs[key] = asset
}

// ReserveUpdated captures the post-accrual snapshot of a reserve.
type ReserveUpdated struct {
	Asset            string
	UtilizationWad   *big.Int
	BorrowRateRay    *big.Int
	LiquidityRateRay *big.Int
	BorrowIndexRay   *big.Int
	LiquidityIndex   *big.Int
}

func (ReserveUpdated) EventType() string { return TypeReserveUpdated }

// Record renders the structured reserve snapshot for downstream consumers.
func (e ReserveUpdated) Record() *Record {
	attrs := map[string]string{}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "utilization", e.UtilizationWad)
	setAmount(attrs, "borrowRate", e.BorrowRateRay)
	setAmount(attrs, "liquidityRate", e.LiquidityRateRay)
	setAmount(attrs, "borrowIndex", e.BorrowIndexRay)
	setAmount(attrs, "liquidityIndex", e.LiquidityIndex)
	return &Record{Type: TypeReserveUpdated, Attributes: attrs}
}

// Deposit captures a supply into a reserve.
type Deposit struct {
	Asset     string
	User      string
	AmountWad *big.Int
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Record() *Record {
	attrs := map[string]string{"user": e.User}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "amount", e.AmountWad)
	return &Record{Type: TypeDeposit, Attributes: attrs}
}

// Withdraw captures a withdrawal from a reserve.
type Withdraw struct {
	Asset     string
	User      string
	AmountWad *big.Int
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Record() *Record {
	attrs := map[string]string{"user": e.User}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "amount", e.AmountWad)
	return &Record{Type: TypeWithdraw, Attributes: attrs}
}

// Borrow captures a draw of debt against collateral.
type Borrow struct {
	Asset     string
	User      string
	AmountWad *big.Int
}

func (Borrow) EventType() string { return TypeBorrow }

func (e Borrow) Record() *Record {
	attrs := map[string]string{"user": e.User}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "amount", e.AmountWad)
	return &Record{Type: TypeBorrow, Attributes: attrs}
}

// Repay captures a debt repayment. IsFull marks whether the position's debt
// was cleared entirely.
type Repay struct {
	Asset     string
	User      string
	Payer     string
	AmountWad *big.Int
	IsFull    bool
}

func (Repay) EventType() string { return TypeRepay }

func (e Repay) Record() *Record {
	attrs := map[string]string{"user": e.User, "payer": e.Payer}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "amount", e.AmountWad)
	if e.IsFull {
		attrs["isFull"] = "true"
	} else {
		attrs["isFull"] = "false"
	}
	return &Record{Type: TypeRepay, Attributes: attrs}
}

// CollateralFlag captures a collateral usage toggle.
type CollateralFlag struct {
	Asset   string
	User    string
	Enabled bool
}

func (CollateralFlag) EventType() string { return TypeCollateralFlag }

func (e CollateralFlag) Record() *Record {
	attrs := map[string]string{"user": e.User}
	setAsset(attrs, "asset", e.Asset)
	if e.Enabled {
		attrs["enabled"] = "true"
	} else {
		attrs["enabled"] = "false"
	}
	return &Record{Type: TypeCollateralFlag, Attributes: attrs}
}

// Liquidation captures a settled liquidation call.
type Liquidation struct {
	DebtAsset       string
	CollateralAsset string
	User            string
	Liquidator      string
	RepaidWad       *big.Int
	SeizedWad       *big.Int
	HealthFactorWad *big.Int
}

func (Liquidation) EventType() string { return TypeLiquidation }

func (e Liquidation) Record() *Record {
	attrs := map[string]string{"user": e.User, "liquidator": e.Liquidator}
	setAsset(attrs, "debtAsset", e.DebtAsset)
	setAsset(attrs, "collateralAsset", e.CollateralAsset)
	setAmount(attrs, "repaid", e.RepaidWad)
	setAmount(attrs, "seized", e.SeizedWad)
	setAmount(attrs, "healthFactor", e.HealthFactorWad)
	return &Record{Type: TypeLiquidation, Attributes: attrs}
}

// FeesWithdrawn captures a protocol fee payout.
type FeesWithdrawn struct {
	Asset     string
	Recipient string
	AmountWad *big.Int
}

func (FeesWithdrawn) EventType() string { return TypeFeesWithdrawn }

func (e FeesWithdrawn) Record() *Record {
	attrs := map[string]string{"recipient": e.Recipient}
	setAsset(attrs, "asset", e.Asset)
	setAmount(attrs, "amount", e.AmountWad)
	return &Record{Type: TypeFeesWithdrawn, Attributes: attrs}
}
