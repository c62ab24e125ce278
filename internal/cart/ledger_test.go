package cart

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/pricing"
)

var (
	gallon = Product{ID: "prd-gallon", Name: "Refill Galon 19L", PriceCents: 3500}
	cup    = Product{ID: "prd-cup", Name: "Gelas Plastik", PriceCents: 2500}
)

func cents(v int64) *int64 { return &v }

func mustAdd(t *testing.T, l *Ledger, p Product, delta int, override *int64) string {
	t.Helper()
	key, err := l.AddLine(p, delta, override)
	require.NoError(t, err)
	return key
}

func TestAddLineSamePriceMergesIntoOneLine(t *testing.T) {
	l := NewLedger()
	k1 := mustAdd(t, l, gallon, 1, nil)
	k2 := mustAdd(t, l, gallon, 2, nil)

	require.Equal(t, k1, k2)
	assert.Equal(t, 1, l.Len())
	line, ok := l.Line(k1)
	require.True(t, ok)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, "prd-gallon@35.00", line.Key)
}

func TestAddLineOverridePriceCreatesSeparateLine(t *testing.T) {
	l := NewLedger()
	base := mustAdd(t, l, gallon, 1, nil)
	override := mustAdd(t, l, gallon, 1, cents(3000))

	assert.NotEqual(t, base, override)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, int64(6500), l.Total())
}

func TestDecreaseBelowOneRemovesLine(t *testing.T) {
	l := NewLedger()
	key := mustAdd(t, l, cup, 1, nil)
	mustAdd(t, l, cup, -1, nil)

	_, ok := l.Line(key)
	assert.False(t, ok)
	assert.True(t, l.IsEmpty())
}

func TestDecreaseMissingLineIsNoop(t *testing.T) {
	l := NewLedger()
	l.AddLine(gallon, 1, nil)

	assert.NotPanics(t, func() { l.AddLine(cup, -1, nil) })
	found, err := l.AdjustLine("prd-cup@25.00", -1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, l.Len())
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	l := NewLedger()
	key := mustAdd(t, l, gallon, 2, nil)
	l.RemoveLine(key)
	l.RemoveLine(key)
	assert.True(t, l.IsEmpty())
	assert.Equal(t, int64(0), l.Total())
}

func TestNegativeOverrideClampsToZero(t *testing.T) {
	l := NewLedger()
	key := mustAdd(t, l, gallon, 1, cents(-500))
	line, ok := l.Line(key)
	require.True(t, ok)
	assert.Equal(t, int64(0), line.UnitPriceCents)
	assert.Equal(t, "prd-gallon@0.00", key)
}

func TestTotalMatchesSurvivingLinesWithoutDrift(t *testing.T) {
	dime := Product{ID: "prd-dime", Name: "Tutup Galon", PriceCents: 10}
	l := NewLedger()
	for i := 0; i < 1000; i++ {
		l.AddLine(dime, 1, nil)
	}
	for i := 0; i < 300; i++ {
		l.AddLine(dime, -1, nil)
	}
	l.AddLine(gallon, 2, nil)
	l.AddLine(cup, 3, nil)
	l.RemoveLine(Key(cup.ID, cup.PriceCents))

	var want int64
	for _, line := range l.Lines() {
		want += line.UnitPriceCents * int64(line.Quantity)
	}
	assert.Equal(t, want, l.Total())
	assert.Equal(t, int64(700*10+2*3500), l.Total())
}

func TestLinesKeepInsertionOrder(t *testing.T) {
	l := NewLedger()
	l.AddLine(cup, 1, nil)
	l.AddLine(gallon, 1, nil)
	l.AddLine(cup, 1, cents(2000))
	l.AddLine(cup, 1, nil)

	lines := l.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "prd-cup@25.00", lines[0].Key)
	assert.Equal(t, "prd-gallon@35.00", lines[1].Key)
	assert.Equal(t, "prd-cup@20.00", lines[2].Key)
	assert.Equal(t, 5, l.ItemCount())
}

func TestAddDiscountedLine(t *testing.T) {
	l := NewLedger()
	key, err := l.AddDiscountedLine(gallon, 2, pricing.Discount{Type: pricing.DiscountPercent, Value: decimal.NewFromInt(10)}, " member ")
	require.NoError(t, err)

	line, ok := l.Line(key)
	require.True(t, ok)
	assert.Equal(t, int64(3150), line.UnitPriceCents)
	assert.Equal(t, int64(3500), line.BasePriceCents)
	assert.Equal(t, pricing.DiscountPercent, line.DiscountType)
	assert.Equal(t, "member", line.Note)
	assert.Equal(t, int64(6300), l.Total())
}

func TestAddDiscountedLineRejectsInvalidDiscount(t *testing.T) {
	l := NewLedger()
	_, err := l.AddDiscountedLine(gallon, 1, pricing.Discount{Type: pricing.DiscountFixed, Value: decimal.NewFromInt(-1)}, "")

	var discountErr *pricing.DiscountInputError
	require.ErrorAs(t, err, &discountErr)
	assert.True(t, l.IsEmpty())
}

func TestAddCustomLine(t *testing.T) {
	l := NewLedger()
	key, err := l.AddCustomLine("Cuci Galon ", 500, 2, pricing.NoDiscount(), "")
	require.NoError(t, err)

	line, ok := l.Line(key)
	require.True(t, ok)
	assert.True(t, line.Custom)
	assert.Equal(t, "custom:cuci-galon", line.ProductID)
	assert.True(t, IsCustomProductID(line.ProductID))
	assert.Equal(t, int64(1000), l.Total())

	_, err = l.AddCustomLine("  ", 500, 1, pricing.NoDiscount(), "")
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestClearDropsCustomer(t *testing.T) {
	l := NewLedger()
	l.AddLine(gallon, 1, nil)
	l.SelectCustomer(&domain.CustomerRef{ID: "cus-1", Name: "Bu Sari"})
	require.NotNil(t, l.Customer())

	l.Clear()
	assert.True(t, l.IsEmpty())
	assert.Nil(t, l.Customer())
}

func TestSnapshotIsDetached(t *testing.T) {
	l := NewLedger()
	l.AddLine(gallon, 1, nil)
	snap := l.Snapshot()

	l.AddLine(gallon, 4, nil)
	assert.Equal(t, 1, snap.Lines[0].Quantity)

	restored := FromSnapshot(snap)
	assert.Equal(t, int64(3500), restored.Total())
}

func TestMutateRevertsWhenCommitFails(t *testing.T) {
	l := NewLedger()
	l.AddLine(gallon, 1, nil)
	commitErr := errors.New("cache down")

	err := l.Mutate(func(l *Ledger) error {
		l.AddLine(cup, 2, nil)
		l.RemoveLine(Key(gallon.ID, gallon.PriceCents))
		return nil
	}, func(Snapshot) error { return commitErr })

	require.ErrorIs(t, err, commitErr)
	lines := l.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, gallon.ID, lines[0].ProductID)
	assert.Equal(t, int64(3500), l.Total())
}

func TestMutateRevertsWhenApplyFails(t *testing.T) {
	l := NewLedger()
	err := l.Mutate(func(l *Ledger) error {
		l.AddLine(gallon, 1, nil)
		_, err := l.AddDiscountedLine(cup, 1, pricing.Discount{Type: pricing.DiscountPercent, Value: decimal.NewFromInt(150)}, "")
		return err
	}, nil)

	require.Error(t, err)
	assert.True(t, l.IsEmpty())
}

func TestMutateCommitsNewState(t *testing.T) {
	l := NewLedger()
	var committed Snapshot
	err := l.Mutate(func(l *Ledger) error {
		l.AddLine(gallon, 2, nil)
		return nil
	}, func(s Snapshot) error {
		committed = s
		return nil
	})

	require.NoError(t, err)
	require.Len(t, committed.Lines, 1)
	assert.Equal(t, 2, committed.Lines[0].Quantity)
}

func TestAddLineRejectsQuantityBeyondLimit(t *testing.T) {
	water := Product{ID: "prd-water", Name: "Air RO", PriceCents: 400}
	l := NewLedger()

	_, err := l.AddLine(water, 1<<62, nil)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.ErrorIs(t, err, ErrInvalidLine)
	assert.True(t, l.IsEmpty())

	key := mustAdd(t, l, water, MaxQuantity, nil)
	_, err = l.AddLine(water, 1, nil)
	require.ErrorIs(t, err, ErrLimitExceeded)

	_, err = l.AdjustLine(key, 1)
	require.ErrorIs(t, err, ErrLimitExceeded)
	line, ok := l.Line(key)
	require.True(t, ok)
	assert.Equal(t, MaxQuantity, line.Quantity)
	assert.Equal(t, int64(400)*MaxQuantity, l.Total())
}

func TestAddLineRejectsCartTotalBeyondLimit(t *testing.T) {
	l := NewLedger()
	_, err := l.AddLine(gallon, 1, cents(money.MaxCents+1))
	require.ErrorIs(t, err, ErrLimitExceeded)

	mustAdd(t, l, gallon, 1, cents(money.MaxCents))
	_, err = l.AddLine(cup, 1, nil)
	require.ErrorIs(t, err, ErrLimitExceeded)

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, money.MaxCents, l.Total())
}

func TestRestoreDropsLinesBeyondLimits(t *testing.T) {
	restored := FromSnapshot(Snapshot{Lines: []Line{
		{ProductID: gallon.ID, Name: gallon.Name, UnitPriceCents: 3500, Quantity: 2},
		{ProductID: cup.ID, Name: cup.Name, UnitPriceCents: 2500, Quantity: MaxQuantity + 1},
	}})
	require.Equal(t, 1, restored.Len())
	assert.Equal(t, int64(7000), restored.Total())
}

func TestCustomLinesWithDistinctNonLatinNamesStaySeparate(t *testing.T) {
	l := NewLedger()
	ice, err := l.AddCustomLine("冰块", 500, 1, pricing.NoDiscount(), "")
	require.NoError(t, err)
	gallonRU, err := l.AddCustomLine("Галлон", 500, 1, pricing.NoDiscount(), "")
	require.NoError(t, err)
	symbols, err := l.AddCustomLine("★★", 500, 1, pricing.NoDiscount(), "")
	require.NoError(t, err)
	hearts, err := l.AddCustomLine("♥♥", 500, 1, pricing.NoDiscount(), "")
	require.NoError(t, err)

	assert.Equal(t, "custom:冰块@5.00", ice)
	assert.Equal(t, "custom:галлон@5.00", gallonRU)
	assert.NotEqual(t, symbols, hearts)
	require.Equal(t, 4, l.Len())

	line, ok := l.Line(ice)
	require.True(t, ok)
	assert.Equal(t, "冰块", line.Name)
	assert.Equal(t, 1, line.Quantity)
}
