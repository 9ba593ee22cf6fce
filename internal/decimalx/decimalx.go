// Package decimalx collects small fixed-point helpers shared across the
// engine. All prices, sizes, and PnL figures in this repository are
// shopspring/decimal values; binary floats are reserved for the
// volatility estimator's internal math only.
package decimalx

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Zero is the canonical zero value, exported to avoid repeated
// decimal.NewFromInt(0) call sites.
var Zero = decimal.Zero

// One is the canonical unit value.
var One = decimal.NewFromInt(1)

// ParsePrice parses a canonical decimal string and requires it be
// strictly positive, matching the PriceTick invariant "price > 0".
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %q must be positive", s)
	}
	return d, nil
}

// Mid returns the midpoint of two decimals.
func Mid(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Div(decimal.NewFromInt(2))
}

// Clamp restricts d to the closed interval [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// BpsToFraction converts a basis-points integer into its decimal
// fraction, e.g. 50 bps -> 0.005.
func BpsToFraction(bps int) decimal.Decimal {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(10000))
}
