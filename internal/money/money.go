// Package money holds currency helpers for the single-currency donation ledger.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const Symbol = "₹"

var hundred = decimal.NewFromInt(100)

// Format renders an amount with two decimals and Indian digit grouping,
// e.g. 1234567.5 -> ₹12,34,567.50.
func Format(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + Symbol + groupIndian(whole) + "." + frac
}

// groupIndian groups the last three digits, then every two digits before them.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

// RoundUnit rounds to the nearest whole currency unit, halves rounding up.
// Amounts in the ledger are never negative.
func RoundUnit(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}

// Percent returns pct percent of amount without rounding.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}
