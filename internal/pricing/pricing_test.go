package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		base int64
		d    Discount
		want int64
	}{
		{"none", 10000, NoDiscount(), 10000},
		{"empty type", 10000, Discount{}, 10000},
		{"percent", 10000, Discount{Type: DiscountPercent, Value: dec("10")}, 9000},
		{"fixed", 10000, Discount{Type: DiscountFixed, Value: dec("30")}, 7000},
		{"fixed clamps to zero", 1000, Discount{Type: DiscountFixed, Value: dec("50")}, 0},
		{"percent full", 3500, Discount{Type: DiscountPercent, Value: dec("100")}, 0},
		{"percent rounds to cent", 999, Discount{Type: DiscountPercent, Value: dec("15")}, 849},
		{"fractional fixed", 3500, Discount{Type: DiscountFixed, Value: dec("2.25")}, 3275},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.base, tt.d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsInvalidDiscounts(t *testing.T) {
	bad := []Discount{
		{Type: DiscountFixed, Value: dec("-1")},
		{Type: DiscountPercent, Value: dec("-0.5")},
		{Type: DiscountPercent, Value: dec("100.01")},
		{Type: "bogus", Value: dec("1")},
	}
	for _, d := range bad {
		_, err := Resolve(10000, d)
		var inputErr *DiscountInputError
		require.ErrorAs(t, err, &inputErr, "%+v", d)
		assert.NotEmpty(t, inputErr.Reason)
	}
}

func TestResolveNeverNegative(t *testing.T) {
	got, err := Resolve(-500, NoDiscount())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestParseDiscountType(t *testing.T) {
	for raw, want := range map[string]DiscountType{
		"":           DiscountNone,
		"NONE":       DiscountNone,
		"fixed":      DiscountFixed,
		" Percent ":  DiscountPercent,
		"percentage": DiscountPercent,
	} {
		got, err := ParseDiscountType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseDiscountType("bogo")
	assert.Error(t, err)
}
