package pool

import "errors"

var (
	ErrAssetNotInitialized     = errors.New("pool: asset not initialized")
	ErrAssetAlreadyInitialized = errors.New("pool: asset already initialized")
	ErrAssetNotBorrowable      = errors.New("pool: asset not borrowable")
	ErrInsufficientLiquidity   = errors.New("pool: insufficient liquidity")
	ErrHealthFactorTooLow      = errors.New("pool: health factor below 1")
	ErrPriceUnavailable        = errors.New("pool: price unavailable")
	ErrPaused                  = errors.New("pool: action paused")
	ErrZeroAmount              = errors.New("pool: amount must be positive")
	ErrNoDebt                  = errors.New("pool: no outstanding debt")
	ErrNotLiquidatable         = errors.New("pool: borrower not eligible for liquidation")
	ErrBorrowCapExceeded       = errors.New("pool: borrow cap exceeded")
	ErrTransferFailed          = errors.New("pool: asset transfer failed")
)
