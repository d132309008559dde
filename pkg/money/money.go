// Package money converts between integer minor units (cents) and decimal
// amounts. Balances are stored as cents; arithmetic that involves rates is
// done in decimal and rounded half away from zero.
package money

import "github.com/shopspring/decimal"

const minorUnitExp = -2

var hundred = decimal.NewFromInt(100)

// Round rounds an amount already expressed in cents to a whole cent.
func Round(cents decimal.Decimal) int64 {
	return cents.Round(0).IntPart()
}

// Percent returns cents * rate / 100 without rounding.
func Percent(cents int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(cents).Mul(rate).Div(hundred)
}

// Format renders cents as a fixed two-decimal major-unit string.
func Format(c int64) string {
	return decimal.New(c, minorUnitExp).StringFixed(-minorUnitExp)
}
