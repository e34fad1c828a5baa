// Package mathutil provides overflow-checked 128-bit arithmetic. Every
// operation that would leave the 128-bit range, or divide by zero, returns
// ammerr.ErrMathOverflow instead of wrapping or panicking.
package mathutil

import (
	errorsmod "cosmossdk.io/errors"
	"lukechampine.com/uint128"

	"cpswap/pkg/ammerr"
)

// U128 is a shorthand for building a 128-bit value from a u64.
func U128(v uint64) uint128.Uint128 {
	return uint128.From64(v)
}

// Add returns a+b, failing if the sum leaves the 128-bit range.
func Add(a, b uint128.Uint128) (uint128.Uint128, error) {
	sum := a.AddWrap(b)
	if sum.Cmp(a) < 0 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s + %s", a, b)
	}
	return sum, nil
}

// Sub returns a-b, failing if b exceeds a.
func Sub(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.Cmp(b) < 0 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s - %s", a, b)
	}
	return a.Sub(b), nil
}

// Mul returns a*b, failing if the product leaves the 128-bit range.
func Mul(a, b uint128.Uint128) (uint128.Uint128, error) {
	if a.IsZero() || b.IsZero() {
		return uint128.Zero, nil
	}
	product := a.MulWrap(b)
	if !product.Div(b).Equals(a) {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s * %s", a, b)
	}
	return product, nil
}

// Div is floor division.
func Div(a, b uint128.Uint128) (uint128.Uint128, error) {
	if b.IsZero() {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s / 0", a)
	}
	return a.Div(b), nil
}

// CeilDiv rounds the quotient up.
func CeilDiv(a, b uint128.Uint128) (uint128.Uint128, error) {
	if b.IsZero() {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s / 0", a)
	}
	q, r := a.QuoRem(b)
	if !r.IsZero() {
		q = q.Add64(1)
	}
	return q, nil
}

// MulDiv computes floor(a * b / c) with a 128-bit intermediate.
func MulDiv(a, b, c uint128.Uint128) (uint128.Uint128, error) {
	product, err := Mul(a, b)
	if err != nil {
		return uint128.Zero, err
	}
	return Div(product, c)
}

// MulDivCeil computes ceil(a * b / c) with a 128-bit intermediate.
func MulDivCeil(a, b, c uint128.Uint128) (uint128.Uint128, error) {
	product, err := Mul(a, b)
	if err != nil {
		return uint128.Zero, err
	}
	return CeilDiv(product, c)
}

// Pow10 returns 10^exp. Exponents above 38 do not fit in 128 bits.
func Pow10(exp uint8) (uint128.Uint128, error) {
	if exp > 38 {
		return uint128.Zero, errorsmod.Wrapf(ammerr.ErrMathOverflow, "10^%d", exp)
	}
	result := uint128.From64(1)
	for i := uint8(0); i < exp; i++ {
		result = result.Mul64(10)
	}
	return result, nil
}

// ToUint64 range-checks a 128-bit result back into 64 bits.
func ToUint64(v uint128.Uint128) (uint64, error) {
	if v.Hi != 0 {
		return 0, errorsmod.Wrapf(ammerr.ErrMathOverflow, "%s does not fit in u64", v)
	}
	return v.Lo, nil
}

// Min64 returns the smaller of a and b.
func Min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
