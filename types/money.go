// Package types provides common value types used across Folio.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in the store currency's smallest unit.
// All arithmetic is integer-only. Balances and prices share one currency,
// so no currency code is carried.
//
// Examples:
//   - Money(4900) = 49.00
//   - Money(10)   = 0.10
type Money int64

// Cents creates a Money value from minor units.
func Cents(n int64) Money { return Money(n) }

// Add returns m + other.
func (m Money) Add(other Money) Money { return m + other }

// Subtract returns m - other.
func (m Money) Subtract(other Money) Money { return m - other }

// Multiply multiplies the amount by a quantity.
func (m Money) Multiply(qty int64) Money { return m * Money(qty) }

// Negate returns the negative of the amount.
func (m Money) Negate() Money { return -m }

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m < 0 }

// LessThan returns true if m is strictly less than other.
func (m Money) LessThan(other Money) bool { return m < other }

// Int64 returns the raw minor-unit amount.
func (m Money) Int64() int64 { return int64(m) }

// String formats the amount in major units with two decimals: "49.00".
func (m Money) String() string {
	amount := int64(m)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// ParseMoney parses a major-unit decimal string such as "12", "12.5" or
// "-0.01" into minor units. At most two fractional digits are accepted.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: parse %q: empty string", s)
	}

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("money: parse %q: more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}

	amount := major*100 + minor
	if neg {
		amount = -amount
	}
	return Money(amount), nil
}

// Sum calculates the sum of multiple Money values.
func Sum(values ...Money) Money {
	var total Money
	for _, v := range values {
		total += v
	}
	return total
}
