package pool

import "math/big"

var (
	wad         = mustBigInt("1000000000000000000")                    // 1e18, balances and prices
	ray         = mustBigInt("1000000000000000000000000000")           // 1e27, indices and per-second rates
	basisPoints = big.NewInt(10_000)

	// maxHealthFactor is the sentinel reported for positions with no debt.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("pool: invalid big integer constant")
	}
	return v
}

// mulDivDown computes a*b/den rounded toward zero. The intermediate product is
// carried at full width, so the sequence never overflows before narrowing.
func mulDivDown(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// mulDivUp computes a*b/den rounded away from zero. Used wherever the result is
// owed to the protocol: debt, repay targets and scaled decrements.
func mulDivUp(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	rem := new(big.Int)
	out.QuoRem(out, den, rem)
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

func rayMulDown(a, index *big.Int) *big.Int { return mulDivDown(a, index, ray) }

func rayMulUp(a, index *big.Int) *big.Int { return mulDivUp(a, index, ray) }

func rayDivDown(a, index *big.Int) *big.Int { return mulDivDown(a, ray, index) }

func rayDivUp(a, index *big.Int) *big.Int { return mulDivUp(a, ray, index) }

// bpsMulDown applies a basis-point fraction to a, rounding down.
func bpsMulDown(a *big.Int, bps uint64) *big.Int {
	return mulDivDown(a, new(big.Int).SetUint64(bps), basisPoints)
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// nativeToWad widens an amount expressed in the asset's native precision to
// WAD. Exact for any decimals <= 18, so no rounding direction applies.
func nativeToWad(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if decimals >= 18 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Mul(amount, pow10(18-decimals))
}

// wadToNativeDown narrows a WAD amount to native precision, flooring. Used for
// amounts paid out by the protocol.
func wadToNativeDown(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if decimals >= 18 {
		return new(big.Int).Set(amount)
	}
	return new(big.Int).Quo(amount, pow10(18-decimals))
}

// wadToNativeUp narrows a WAD amount to native precision, ceiling. Used for
// amounts collected by the protocol.
func wadToNativeUp(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	if decimals >= 18 {
		return new(big.Int).Set(amount)
	}
	scale := pow10(18 - decimals)
	out := new(big.Int)
	rem := new(big.Int)
	out.QuoRem(amount, scale, rem)
	if rem.Sign() != 0 {
		out.Add(out, big.NewInt(1))
	}
	return out
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
