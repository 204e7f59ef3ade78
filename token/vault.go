// Package token provides the in-process settlement backend for pool assets.
// The pool treats it as a black-box debit/credit collaborator; any deployment
// that settles externally simply skips registering a vault.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the holder's
	// balance.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrInvalidAmount is returned for nil or negative amounts.
	ErrInvalidAmount = errors.New("token: amount must be non-negative")
)

// Vault tracks native-unit balances for one asset and the pool's own holding.
// TransferIn debits a holder and credits the pool; TransferOut does the
// reverse. Both legs are atomic under the vault lock.
type Vault struct {
	mu       sync.Mutex
	asset    string
	pool     *big.Int
	balances map[string]*big.Int
}

// NewVault constructs an empty vault for the asset.
func NewVault(asset string) *Vault {
	return &Vault{
		asset:    asset,
		pool:     big.NewInt(0),
		balances: make(map[string]*big.Int),
	}
}

// Asset returns the asset identifier this vault settles.
func (v *Vault) Asset() string {
	if v == nil {
		return ""
	}
	return v.asset
}

// Mint credits a holder out of thin air. Seeding helper for demos and tests.
func (v *Vault) Mint(holder string, amount *big.Int) {
	if v == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(holder, amount)
}

// BalanceOf reports the holder's current balance.
func (v *Vault) BalanceOf(holder string) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if bal, ok := v.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// PoolBalance reports the vault's pool-side holding.
func (v *Vault) PoolBalance() *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.pool)
}

// TransferIn debits the holder and credits the pool.
func (v *Vault) TransferIn(from string, amount *big.Int) error {
	if v == nil {
		return ErrInvalidAmount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	bal, ok := v.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s", ErrInsufficientFunds, from, v.balanceString(from), v.asset)
	}
	bal.Sub(bal, amount)
	v.pool.Add(v.pool, amount)
	return nil
}

// TransferOut debits the pool and credits the recipient.
func (v *Vault) TransferOut(to string, amount *big.Int) error {
	if v == nil {
		return ErrInvalidAmount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pool.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pool holds %s %s", ErrInsufficientFunds, v.pool.String(), v.asset)
	}
	v.pool.Sub(v.pool, amount)
	v.credit(to, amount)
	return nil
}

func (v *Vault) credit(holder string, amount *big.Int) {
	if bal, ok := v.balances[holder]; ok {
		bal.Add(bal, amount)
		return
	}
	v.balances[holder] = new(big.Int).Set(amount)
}

func (v *Vault) balanceString(holder string) string {
	if bal, ok := v.balances[holder]; ok {
		return bal.String()
	}
	return "0"
}
