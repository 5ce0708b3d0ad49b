// Package bignum provides exact-rational price arithmetic and overflow-safe
// multiply-divide for the ledger-state engine. Ledger offer prices must never
// be compared as floating point: a correct implementation cross-multiplies.
package bignum

import (
	"fmt"
	"math/big"
)

// RoundingMode controls how bigDivide rounds a non-exact quotient.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// MaxInt64 is the saturation ceiling used throughout liability accounting.
const MaxInt64 = int64(^uint64(0) >> 1)

// Rational is an exact n/d price. d is always > 0; n is always > 0 for a
// well-formed offer price (see ledgerstate.OfferEntry.Validate).
type Rational struct {
	N int64
	D int64
}

func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.N, r.D)
}

// IsZero reports whether the rational reduces to zero.
func (r Rational) IsZero() bool {
	return r.N == 0
}

// Less reports whether r < other, via cross-multiplication — never via
// floating-point division, so ties stay transitive near int64 limits.
func (r Rational) Less(other Rational) bool {
	lhs := new(big.Int).Mul(big.NewInt(r.N), big.NewInt(other.D))
	rhs := new(big.Int).Mul(big.NewInt(other.N), big.NewInt(r.D))
	return lhs.Cmp(rhs) < 0
}

// LessOrEqual reports whether r <= other.
func (r Rational) LessOrEqual(other Rational) bool {
	lhs := new(big.Int).Mul(big.NewInt(r.N), big.NewInt(other.D))
	rhs := new(big.Int).Mul(big.NewInt(other.N), big.NewInt(r.D))
	return lhs.Cmp(rhs) <= 0
}

// Equal reports whether r == other as exact rationals.
func (r Rational) Equal(other Rational) bool {
	lhs := new(big.Int).Mul(big.NewInt(r.N), big.NewInt(other.D))
	rhs := new(big.Int).Mul(big.NewInt(other.N), big.NewInt(r.D))
	return lhs.Cmp(rhs) == 0
}

// Invert returns d/n, the reciprocal price.
func (r Rational) Invert() Rational {
	return Rational{N: r.D, D: r.N}
}

// BigDivide computes floor_or_ceil(a*b/c) using a 128-bit-wide intermediate
// product, returning ok=false on overflow of the int64 result (callers that
// document INT64_MAX-on-overflow behavior should substitute MaxInt64 in that
// case).
func BigDivide(a, b, c int64, mode RoundingMode) (result int64, ok bool) {
	if c == 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}

	neg := (a < 0) != (b < 0)
	if c < 0 {
		neg = !neg
	}

	prod := new(big.Int).Mul(bigAbs(a), bigAbs(b))
	denom := bigAbs(c)

	q, rem := new(big.Int).QuoRem(prod, denom, new(big.Int))
	if mode == RoundUp && rem.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}

	if neg {
		q.Neg(q)
	}

	if !q.IsInt64() {
		return 0, false
	}
	return q.Int64(), true
}

func bigAbs(v int64) *big.Int {
	b := big.NewInt(v)
	return b.Abs(b)
}

// SaturatingMulDivUp returns ceil(amount*n/d), saturating to MaxInt64 on
// overflow instead of signalling failure — used by buyingLiabilities, which
// the spec documents as saturating rather than erroring.
func SaturatingMulDivUp(amount, n, d int64) int64 {
	v, ok := BigDivide(amount, n, d, RoundUp)
	if !ok {
		return MaxInt64
	}
	return v
}
