// Package cart holds the sale in progress at one POS terminal.
//
// Lines are keyed by product id plus effective unit price, so the same product
// sold at a manual override price sits on its own line next to the base-price
// line. A Ledger is not safe for concurrent use; its owner serializes access.
package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/pricing"
)

const customPrefix = "custom:"

// MaxQuantity bounds a single line. Unit prices and the cart total are bounded
// by money.MaxCents, so no subtotal or total can overflow.
const MaxQuantity = 1_000_000

var (
	ErrInvalidLine   = errors.New("invalid cart line")
	ErrLimitExceeded = fmt.Errorf("%w: quantity or amount exceeds limit", ErrInvalidLine)
)

// Product is the catalog data a line needs.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
}

type Line struct {
	Key            string               `json:"key"`
	ProductID      string               `json:"product_id"`
	Name           string               `json:"name"`
	BasePriceCents int64                `json:"base_price_cents"`
	UnitPriceCents int64                `json:"unit_price_cents"`
	Quantity       int                  `json:"quantity"`
	DiscountType   pricing.DiscountType `json:"discount_type"`
	DiscountValue  decimal.Decimal      `json:"discount_value"`
	Note           string               `json:"note,omitempty"`
	Custom         bool                 `json:"custom,omitempty"`
}

func (l Line) SubtotalCents() int64 {
	return money.LineTotal(l.UnitPriceCents, l.Quantity)
}

// Snapshot is a detached copy of a ledger, used for persistence and rollback.
type Snapshot struct {
	Lines    []Line              `json:"lines"`
	Customer *domain.CustomerRef `json:"customer,omitempty"`
}

type Ledger struct {
	lines    map[string]*Line
	order    []string
	customer *domain.CustomerRef
}

func NewLedger() *Ledger {
	return &Ledger{lines: make(map[string]*Line)}
}

// Key builds the line key for a product at an effective unit price.
func Key(productID string, unitPriceCents int64) string {
	return productID + "@" + money.String(unitPriceCents)
}

// AddLine applies a signed quantity delta to the line for product at the
// override price, or at the product's own price when override is nil. A line
// whose quantity drops to zero or below is removed; a negative delta for a
// missing line does nothing. It returns the affected key. A change that would
// push the line or the cart past its limits fails with ErrLimitExceeded and
// leaves the ledger untouched.
func (l *Ledger) AddLine(p Product, delta int, override *int64) (string, error) {
	price := p.PriceCents
	if override != nil {
		price = *override
	}
	return l.apply(Line{
		ProductID:      p.ID,
		Name:           p.Name,
		BasePriceCents: p.PriceCents,
		UnitPriceCents: price,
		DiscountType:   pricing.DiscountNone,
	}, delta)
}

// AddDiscountedLine resolves the discounted unit price and then behaves like
// AddLine. The discount is validated before anything changes.
func (l *Ledger) AddDiscountedLine(p Product, delta int, d pricing.Discount, note string) (string, error) {
	price, err := pricing.Resolve(p.PriceCents, d)
	if err != nil {
		return "", err
	}
	if d.Type == "" {
		d.Type = pricing.DiscountNone
	}
	return l.apply(Line{
		ProductID:      p.ID,
		Name:           p.Name,
		BasePriceCents: p.PriceCents,
		UnitPriceCents: price,
		DiscountType:   d.Type,
		DiscountValue:  d.Value,
		Note:           strings.TrimSpace(note),
	}, delta)
}

// AddCustomLine records an item that is not in the catalog. Custom lines carry
// no stock.
func (l *Ledger) AddCustomLine(name string, priceCents int64, qty int, d pricing.Discount, note string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || qty < 1 {
		return "", ErrInvalidLine
	}
	price, err := pricing.Resolve(priceCents, d)
	if err != nil {
		return "", err
	}
	if d.Type == "" {
		d.Type = pricing.DiscountNone
	}
	return l.apply(Line{
		ProductID:      customPrefix + slug(name),
		Name:           name,
		BasePriceCents: priceCents,
		UnitPriceCents: price,
		DiscountType:   d.Type,
		DiscountValue:  d.Value,
		Note:           strings.TrimSpace(note),
		Custom:         true,
	}, qty)
}

// AdjustLine changes the quantity of an existing line by key. It reports false
// when no such line exists.
func (l *Ledger) AdjustLine(key string, delta int) (bool, error) {
	line, ok := l.lines[key]
	if !ok {
		return false, nil
	}
	if _, err := l.apply(*line, delta); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveLine deletes the line; removing a missing key is not an error.
func (l *Ledger) RemoveLine(key string) {
	if _, ok := l.lines[key]; !ok {
		return
	}
	delete(l.lines, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Clear empties the ledger and drops the selected customer.
func (l *Ledger) Clear() {
	l.lines = make(map[string]*Line)
	l.order = nil
	l.customer = nil
}

// Total is recomputed from the lines on every call.
func (l *Ledger) Total() int64 {
	var total int64
	for _, line := range l.lines {
		total += line.SubtotalCents()
	}
	return total
}

func (l *Ledger) Len() int {
	return len(l.lines)
}

func (l *Ledger) IsEmpty() bool {
	return len(l.lines) == 0
}

// ItemCount is the sum of all quantities.
func (l *Ledger) ItemCount() int {
	count := 0
	for _, line := range l.lines {
		count += line.Quantity
	}
	return count
}

func (l *Ledger) Line(key string) (Line, bool) {
	line, ok := l.lines[key]
	if !ok {
		return Line{}, false
	}
	return *line, true
}

// Lines returns copies in the order they were first added.
func (l *Ledger) Lines() []Line {
	out := make([]Line, 0, len(l.order))
	for _, key := range l.order {
		out = append(out, *l.lines[key])
	}
	return out
}

func (l *Ledger) SelectCustomer(ref *domain.CustomerRef) {
	if ref == nil || strings.TrimSpace(ref.ID) == "" {
		l.customer = nil
		return
	}
	c := *ref
	l.customer = &c
}

// Customer returns the selected customer, nil for a walk-in sale.
func (l *Ledger) Customer() *domain.CustomerRef {
	if l.customer == nil {
		return nil
	}
	c := *l.customer
	return &c
}

func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{Lines: l.Lines(), Customer: l.Customer()}
}

// Restore replaces the ledger contents with s. Keys are rebuilt from the line
// data, and lines with non-positive quantities are dropped.
func (l *Ledger) Restore(s Snapshot) {
	l.Clear()
	for _, line := range s.Lines {
		// Lines beyond the limits cannot be entered, so they are dropped.
		_, _ = l.apply(line, line.Quantity)
	}
	l.SelectCustomer(s.Customer)
}

// Mutate snapshots the ledger, applies fn and then hands the new state to
// commit. If fn or commit fails, the snapshot is restored and the error
// returned.
func (l *Ledger) Mutate(fn func(*Ledger) error, commit func(Snapshot) error) error {
	before := l.Snapshot()
	if err := fn(l); err != nil {
		l.Restore(before)
		return err
	}
	if commit == nil {
		return nil
	}
	if err := commit(l.Snapshot()); err != nil {
		l.Restore(before)
		return err
	}
	return nil
}

// FromSnapshot builds a ledger from persisted state.
func FromSnapshot(s Snapshot) *Ledger {
	l := NewLedger()
	l.Restore(s)
	return l
}

func (l *Ledger) apply(candidate Line, delta int) (string, error) {
	if candidate.UnitPriceCents < 0 {
		candidate.UnitPriceCents = 0
	}
	if candidate.UnitPriceCents > money.MaxCents || delta > MaxQuantity || delta < -MaxQuantity {
		return "", ErrLimitExceeded
	}
	key := Key(candidate.ProductID, candidate.UnitPriceCents)

	existing, ok := l.lines[key]
	if !ok && delta <= 0 {
		return key, nil
	}
	qty := delta
	if ok {
		qty += existing.Quantity
	}
	if qty <= 0 {
		l.RemoveLine(key)
		return key, nil
	}
	if qty > MaxQuantity {
		return "", ErrLimitExceeded
	}

	// Price and quantity are bounded, so the subtotals cannot overflow.
	total := l.Total() + money.LineTotal(candidate.UnitPriceCents, qty)
	if ok {
		total -= existing.SubtotalCents()
	}
	if total > money.MaxCents {
		return "", ErrLimitExceeded
	}

	if ok {
		existing.Quantity = qty
		return key, nil
	}
	candidate.Key = key
	candidate.Quantity = qty
	l.lines[key] = &candidate
	l.order = append(l.order, key)
	return key, nil
}

// IsCustomProductID reports whether id belongs to a custom sale entry.
func IsCustomProductID(id string) bool {
	return strings.HasPrefix(id, customPrefix)
}

// slug keeps letters and digits of any script. Names with neither fall back to
// a short hash so distinct items never share an id.
func slug(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash && b.Len() > 0:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		sum := sha256.Sum256([]byte(strings.TrimSpace(name)))
		out = "x" + hex.EncodeToString(sum[:4])
	}
	return out
}
