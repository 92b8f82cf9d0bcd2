// Package money implements fixed-point integer amounts and the fee
// arithmetic used throughout the wallet core. All monetary math is exact
// integer; there is no floating point anywhere in this package.
package money

import (
	"math/big"

	"github.com/elastos-sidechain/spvwallet/internal/er"
)

// Err is the error family for every fault this package can raise.
var Err = er.NewErrorType("money.Err")

// ErrArithmeticOverflow is returned by any operation that would push an
// Amount outside [0, MaxMoney].
var ErrArithmeticOverflow = Err.Code("ArithmeticOverflow")

// ErrInsufficientFunds is returned by Sub when the result would be negative.
var ErrInsufficientFunds = Err.Code("InsufficientFunds")

// MaxMoney bounds every Amount in existence: 21,000,000 whole units at 8
// decimal places of precision, the native asset's maximum supply. It is the
// overflow ceiling referenced by spec.md §4.1 ("overflow-checked
// arithmetic") even though Amount itself is arbitrary precision.
var MaxMoney = new(big.Int).Mul(big.NewInt(21_000_000), big.NewInt(100_000_000))

// Amount is a non-negative integer count of the smallest subdivision of an
// asset ("sats"). Backed by math/big.Int for arbitrary precision, but every
// mutator is checked against MaxMoney so overflow is still observable.
type Amount struct {
	v big.Int
}

// Zero is the additive identity.
var Zero = Amount{}

// NewAmount constructs an Amount from a non-negative int64 sats value.
func NewAmount(sats int64) (Amount, er.R) {
	if sats < 0 {
		return Zero, ErrArithmeticOverflow.New("negative amount", nil)
	}
	a := Amount{}
	a.v.SetInt64(sats)
	if a.v.Cmp(MaxMoney) > 0 {
		return Zero, ErrArithmeticOverflow.Default()
	}
	return a, nil
}

// MustAmount is NewAmount but panics on error; for values known to lie
// within [0, MaxMoney], such as literals and package constants.
func MustAmount(sats int64) Amount {
	a, err := NewAmount(sats)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) validate() er.R {
	if a.v.Sign() < 0 {
		return ErrArithmeticOverflow.New("negative amount", nil)
	}
	if a.v.Cmp(MaxMoney) > 0 {
		return ErrArithmeticOverflow.Default()
	}
	return nil
}

// Add returns a+b, failing with ArithmeticOverflow if the sum exceeds
// MaxMoney.
func (a Amount) Add(b Amount) (Amount, er.R) {
	r := Amount{}
	r.v.Add(&a.v, &b.v)
	if err := r.validate(); err != nil {
		return Zero, err
	}
	return r, nil
}

// Sub returns a-b, failing with InsufficientFunds if the result would be
// negative.
func (a Amount) Sub(b Amount) (Amount, er.R) {
	r := Amount{}
	r.v.Sub(&a.v, &b.v)
	if r.v.Sign() < 0 {
		return Zero, ErrInsufficientFunds.New("", nil)
	}
	return r, nil
}

// SubInvariant is Sub used inside internal bookkeeping where a negative
// result indicates a broken invariant rather than a user-facing shortfall.
func (a Amount) SubInvariant(b Amount) (Amount, er.R) {
	r := Amount{}
	r.v.Sub(&a.v, &b.v)
	if r.v.Sign() < 0 {
		return Zero, er.New("InvariantViolated: amount went negative")
	}
	return r, nil
}

// Mul returns a*n, n a small non-negative multiplier (e.g. a byte count).
func (a Amount) Mul(n int64) (Amount, er.R) {
	r := Amount{}
	r.v.Mul(&a.v, big.NewInt(n))
	if err := r.validate(); err != nil {
		return Zero, err
	}
	return r, nil
}

// DivCeil returns ceil(a/den).
func (a Amount) DivCeil(den int64) Amount {
	if den <= 0 {
		return a
	}
	num := new(big.Int).Set(&a.v)
	d := big.NewInt(den)
	q, m := new(big.Int), new(big.Int)
	q.DivMod(num, d, m)
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return Amount{v: *q}
}

// Cmp compares a to b: -1, 0, 1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.v.Sign() == 0 }

// Int64 returns the amount as an int64, for callers that know it fits
// (it always does, since MaxMoney < 2^63).
func (a Amount) Int64() int64 { return a.v.Int64() }

// String renders the raw sats integer.
func (a Amount) String() string { return a.v.String() }
