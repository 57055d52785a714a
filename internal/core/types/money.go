// Package types provides common type aliases and money arithmetic helpers.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

var hundred = decimal.NewFromInt(100)

// Hundred returns the constant 100, used in percentage math.
func Hundred() Money {
	return hundred
}

// Round2 rounds a monetary amount to 2 decimal places, half-up.
// decimal.Round rounds half away from zero, which equals half-up for the
// non-negative amounts this engine deals in.
func Round2(d Money) Money {
	return d.Round(2)
}

// Percent reports whether p is a valid percentage in [0, 100].
func Percent(p Money) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// PercentOf returns amount × p / 100 without rounding.
func PercentOf(amount, p Money) Money {
	return amount.Mul(p).Div(hundred)
}
