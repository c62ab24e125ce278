// Package pricing resolves the effective unit price of a cart line from its
// base price and an optional per-unit discount.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"refillpos/internal/money"
)

type DiscountType string

const (
	DiscountNone    DiscountType = "none"
	DiscountFixed   DiscountType = "fixed"
	DiscountPercent DiscountType = "percent"
)

var maxPercent = decimal.NewFromInt(100)

// DiscountInputError reports a discount that cannot be applied. Resolution is
// never attempted with such a discount.
type DiscountInputError struct {
	Type   DiscountType
	Value  decimal.Decimal
	Reason string
}

func (e *DiscountInputError) Error() string {
	return fmt.Sprintf("invalid %s discount %s: %s", e.Type, e.Value.String(), e.Reason)
}

// Discount is a per-unit discount specification. For fixed discounts Value is
// an amount of money, for percent discounts a percentage of the base price.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

func NoDiscount() Discount {
	return Discount{Type: DiscountNone}
}

func (d Discount) IsZero() bool {
	return d.Type == "" || d.Type == DiscountNone || d.Value.IsZero()
}

func ParseDiscountType(raw string) (DiscountType, error) {
	switch DiscountType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DiscountNone:
		return DiscountNone, nil
	case DiscountFixed, "amount":
		return DiscountFixed, nil
	case DiscountPercent, "percentage":
		return DiscountPercent, nil
	default:
		return "", &DiscountInputError{Type: DiscountType(raw), Reason: "unknown discount type"}
	}
}

// Validate rejects negative values, percentages above 100 and unknown types.
func Validate(d Discount) error {
	switch d.Type {
	case "", DiscountNone:
		return nil
	case DiscountFixed, DiscountPercent:
	default:
		return &DiscountInputError{Type: d.Type, Value: d.Value, Reason: "unknown discount type"}
	}
	if d.Value.IsNegative() {
		return &DiscountInputError{Type: d.Type, Value: d.Value, Reason: "value must not be negative"}
	}
	if d.Type == DiscountPercent && d.Value.GreaterThan(maxPercent) {
		return &DiscountInputError{Type: d.Type, Value: d.Value, Reason: "percentage must be between 0 and 100"}
	}
	return nil
}

// Resolve returns the effective unit price in cents. The result is never
// negative: a discount larger than the base price yields zero.
func Resolve(baseCents int64, d Discount) (int64, error) {
	if err := Validate(d); err != nil {
		return 0, err
	}
	if baseCents < 0 {
		baseCents = 0
	}

	effective := baseCents
	switch d.Type {
	case DiscountFixed:
		effective = baseCents - money.FromDecimal(d.Value)
	case DiscountPercent:
		effective = baseCents - money.Percent(baseCents, d.Value)
	}

	if effective < 0 {
		return 0, nil
	}
	return effective, nil
}
