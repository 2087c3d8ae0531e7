// Package fixedpoint implements 1e18-scaled unsigned integer arithmetic with floor division.
//
// Amounts and ratios are *big.Int values where 1e18 represents 1.0. Every helper
// returns a fresh value and never mutates its arguments.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits in the scale.
const Decimals = 18

var (
	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	// ErrNegative reports a negative value where only non-negative ones are valid.
	ErrNegative = errors.New("fixedpoint: negative value")
	// ErrSyntax reports an unparsable amount.
	ErrSyntax = errors.New("fixedpoint: invalid amount")
)

// One returns 1e18.
func One() *big.Int { return new(big.Int).Set(scale) }

// Zero returns a new zero value.
func Zero() *big.Int { return new(big.Int) }

// FromInt returns n * 1e18.
func FromInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), scale)
}

// Ratio returns num * 1e18 / den, floored. den must be positive.
func Ratio(num, den int64) *big.Int {
	return MulDiv(big.NewInt(num), scale, big.NewInt(den))
}

// MulDiv returns floor(a*b/c) for non-negative a, b and positive c.
func MulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// Mul multiplies an amount by a 1e18-scaled ratio: floor(a*r/1e18).
func Mul(a, r *big.Int) *big.Int {
	return MulDiv(a, r, scale)
}

// Complement returns 1e18 - r.
func Complement(r *big.Int) *big.Int {
	return new(big.Int).Sub(scale, r)
}

// Add returns a + b.
func Add(a, b *big.Int) *big.Int { return new(big.Int).Add(a, b) }

// Sub returns a - b.
func Sub(a, b *big.Int) *big.Int { return new(big.Int).Sub(a, b) }

// MulInt returns a * n.
func MulInt(a *big.Int, n int64) *big.Int {
	return new(big.Int).Mul(a, big.NewInt(n))
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool { return v == nil || v.Sign() == 0 }

// Clone copies v, treating nil as zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ParseUnits parses a base-10 integer string of base units.
func ParseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}
	return v, nil
}

// ParseDecimal parses a human-readable token amount such as "0.01" into base units.
// Digits beyond 18 decimals are truncated.
func ParseDecimal(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q", ErrNegative, s)
	}
	return d.Shift(Decimals).Truncate(0).BigInt(), nil
}

// Format renders base units as a decimal token amount, e.g. 1500000000000000000 -> "1.5".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).String()
}
