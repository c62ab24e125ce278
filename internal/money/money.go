// Package money keeps every amount as int64 minor units (cents). Decimals only
// appear at the edges: request parsing, percentages and display.
package money

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents bounds every amount the POS accepts, in either direction.
const MaxCents int64 = 1_000_000_000_000

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrOutOfRange    = errors.New("amount out of range")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxCents)
)

// FromDecimal converts a decimal amount into cents, rounding half away from
// zero. Amounts beyond MaxCents are clamped; use Cents where the input comes
// from a client.
func FromDecimal(d decimal.Decimal) int64 {
	c := d.Mul(hundred).Round(0)
	switch {
	case c.GreaterThan(maxCents):
		return MaxCents
	case c.LessThan(maxCents.Neg()):
		return -MaxCents
	}
	return c.IntPart()
}

// Cents is FromDecimal that rejects amounts beyond MaxCents.
func Cents(d decimal.Decimal) (int64, error) {
	c := d.Mul(hundred).Round(0)
	if c.Abs().GreaterThan(maxCents) {
		return 0, ErrOutOfRange
	}
	return c.IntPart(), nil
}

// ToDecimal converts cents into an exact two-place decimal.
func ToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Parse reads a plain decimal string such as "35", "35.5" or "35.00".
func Parse(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return Cents(d)
}

// String renders cents as a two-place decimal without grouping ("1234.50").
func String(cents int64) string {
	return ToDecimal(cents).StringFixed(2)
}

// Percent returns pct percent of cents, rounded to the nearest cent.
func Percent(cents int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(pct).Div(hundred).Round(0).IntPart()
}

// LineTotal multiplies a unit price by a quantity. Callers keep both inside
// their limits; see MulQty for the checked form.
func LineTotal(unitCents int64, qty int) int64 {
	return unitCents * int64(qty)
}

// MulQty is LineTotal that fails instead of wrapping.
func MulQty(unitCents int64, qty int) (int64, error) {
	q := int64(qty)
	if unitCents == 0 || q == 0 {
		return 0, nil
	}
	if q == -1 && unitCents == math.MinInt64 || unitCents == -1 && q == math.MinInt64 {
		return 0, ErrOutOfRange
	}
	p := unitCents * q
	if p/q != unitCents {
		return 0, ErrOutOfRange
	}
	return p, nil
}

// Add sums two amounts, failing instead of wrapping.
func Add(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrOutOfRange
	}
	return a + b, nil
}

// Format renders cents with comma thousands separators, e.g. "12,500.00".
func Format(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}

	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var b strings.Builder
	b.Grow(len(whole) + len(whole)/3 + 4)
	if neg {
		b.WriteByte('-')
	}

	rem := len(whole) % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(whole[:rem])
	for i := rem; i < len(whole); i += 3 {
		b.WriteByte(',')
		b.WriteString(whole[i : i+3])
	}
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))

	return b.String()
}

// FormatWithSymbol prefixes Format with a currency symbol, keeping the sign first.
func FormatWithSymbol(symbol string, cents int64) string {
	if cents < 0 {
		return "-" + symbol + Format(-cents)
	}
	return symbol + Format(cents)
}
