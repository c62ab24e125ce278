package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"refillpos/internal/cart"
	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/pricing"
	"refillpos/internal/store"
)

const maxTerminalIDLen = 64

// terminal owns the ledger of one POS terminal. The mutex makes the ledger
// single-writer; loaded marks that the cached snapshot was read, and a failed
// read is retried on the next request. An evicted
// terminal is no longer in the registry and must not be used.
type terminal struct {
	mu      sync.Mutex
	ledger  *cart.Ledger
	loaded  bool
	evicted bool
}

type AddToCartRequest struct {
	ProductID     string           `json:"product_id"`
	QuantityDelta int              `json:"quantity_delta"`
	OverridePrice *decimal.Decimal `json:"override_price,omitempty"`
	DiscountType  string           `json:"discount_type,omitempty"`
	DiscountValue *decimal.Decimal `json:"discount_value,omitempty"`
	Note          string           `json:"note,omitempty"`
	ManagerPIN    string           `json:"manager_pin,omitempty"`
	// ManagerApproved is set by the transport after checking ManagerPIN.
	ManagerApproved bool `json:"-"`
}

type CustomLineRequest struct {
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	Quantity        int              `json:"quantity"`
	DiscountType    string           `json:"discount_type,omitempty"`
	DiscountValue   *decimal.Decimal `json:"discount_value,omitempty"`
	Note            string           `json:"note,omitempty"`
	ManagerPIN      string           `json:"manager_pin,omitempty"`
	ManagerApproved bool             `json:"-"`
}

type AdjustLineRequest struct {
	Delta int `json:"delta"`
}

type SelectCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type CartLineView struct {
	cart.Line
	SubtotalCents int64  `json:"subtotal_cents"`
	UnitPrice     string `json:"unit_price"`
	Subtotal      string `json:"subtotal"`
}

type CartView struct {
	TerminalID string              `json:"terminal_id"`
	Lines      []CartLineView      `json:"lines"`
	ItemCount  int                 `json:"item_count"`
	TotalCents int64               `json:"total_cents"`
	Total      string              `json:"total"`
	Customer   *domain.CustomerRef `json:"customer,omitempty"`
}

func (s *Service) GetCart(ctx context.Context, terminalID string) (CartView, error) {
	var view CartView
	err := s.withLedger(ctx, terminalID, func(l *cart.Ledger) error {
		view = cartView(terminalID, l)
		return nil
	})
	return view, err
}

// AddToCart looks the product up in the catalog and applies the quantity
// delta. Prices sent by the client are only honored as an explicit override.
func (s *Service) AddToCart(ctx context.Context, terminalID string, req AddToCartRequest) (CartView, string, error) {
	if strings.TrimSpace(req.ProductID) == "" || req.QuantityDelta == 0 {
		return CartView{}, "", store.ErrInvalidInput
	}
	if err := checkQuantity(req.QuantityDelta); err != nil {
		return CartView{}, "", err
	}
	discount, err := parseDiscount(req.DiscountType, req.DiscountValue)
	if err != nil {
		return CartView{}, "", err
	}
	var override *int64
	if req.OverridePrice != nil {
		price, err := priceCents(*req.OverridePrice)
		if err != nil {
			return CartView{}, "", err
		}
		override = &price
	}
	if req.OverridePrice != nil && !discount.IsZero() {
		return CartView{}, "", fmt.Errorf("%w: override price and discount are exclusive", store.ErrInvalidInput)
	}
	priced := req.OverridePrice != nil || !discount.IsZero()
	if priced && req.QuantityDelta > 0 && !approved(ctx, req.ManagerApproved) {
		return CartView{}, "", ErrApprovalRequired
	}

	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return CartView{}, "", err
	}
	if !product.Active {
		return CartView{}, "", fmt.Errorf("%w: product %s is inactive", store.ErrInvalidInput, product.ID)
	}
	item := cart.Product{ID: product.ID, Name: product.Name, PriceCents: product.PriceCents}

	var key string
	view, err := s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		var (
			k   string
			err error
		)
		if discount.IsZero() {
			k, err = l.AddLine(item, req.QuantityDelta, override)
		} else {
			k, err = l.AddDiscountedLine(item, req.QuantityDelta, discount, req.Note)
		}
		if err != nil {
			return err
		}
		key = k
		return nil
	})
	if err != nil {
		return CartView{}, "", err
	}

	if priced && req.QuantityDelta > 0 {
		s.logAudit(ctx, s.defaultStoreID, "cart_price_override", "cart_line", key,
			fmt.Sprintf("terminal=%s,base=%d,discount=%s", terminalID, product.PriceCents, discount.Type))
	}
	return view, key, nil
}

// AddCustomLine adds an item that is not in the catalog. Cashiers need manager
// approval since the price is entered by hand.
func (s *Service) AddCustomLine(ctx context.Context, terminalID string, req CustomLineRequest) (CartView, string, error) {
	price, err := priceCents(req.Price)
	if err != nil {
		return CartView{}, "", err
	}
	if err := checkQuantity(req.Quantity); err != nil {
		return CartView{}, "", err
	}
	discount, err := parseDiscount(req.DiscountType, req.DiscountValue)
	if err != nil {
		return CartView{}, "", err
	}
	if !approved(ctx, req.ManagerApproved) {
		return CartView{}, "", ErrApprovalRequired
	}

	var key string
	view, err := s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		k, err := l.AddCustomLine(req.Name, price, req.Quantity, discount, req.Note)
		if err != nil {
			return err
		}
		key = k
		return nil
	})
	if err != nil {
		return CartView{}, "", err
	}

	s.logAudit(ctx, s.defaultStoreID, "cart_custom_line", "cart_line", key,
		fmt.Sprintf("terminal=%s,price=%s,qty=%d", terminalID, money.String(price), req.Quantity))
	return view, key, nil
}

// AdjustLine changes a line quantity by key. A delta that empties the line
// removes it; an unknown key is not found.
func (s *Service) AdjustLine(ctx context.Context, terminalID string, key string, req AdjustLineRequest) (CartView, error) {
	if req.Delta == 0 {
		return CartView{}, store.ErrInvalidInput
	}
	if err := checkQuantity(req.Delta); err != nil {
		return CartView{}, err
	}
	return s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		found, err := l.AdjustLine(key, req.Delta)
		if err != nil {
			return err
		}
		if !found {
			return store.ErrNotFound
		}
		return nil
	})
}

// RemoveFromCart is idempotent.
func (s *Service) RemoveFromCart(ctx context.Context, terminalID string, key string) (CartView, error) {
	return s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		l.RemoveLine(key)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, terminalID string) (CartView, error) {
	return s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		l.Clear()
		return nil
	})
}

// SelectCustomer attaches an existing active customer to the cart. An empty
// id makes the sale a walk-in again.
func (s *Service) SelectCustomer(ctx context.Context, terminalID string, req SelectCustomerRequest) (CartView, error) {
	id := strings.TrimSpace(req.CustomerID)
	var ref *domain.CustomerRef
	if id != "" {
		customer, err := s.repo.GetCustomer(ctx, id)
		if err != nil {
			return CartView{}, err
		}
		if !customer.Active {
			return CartView{}, fmt.Errorf("%w: customer %s is inactive", store.ErrInvalidInput, id)
		}
		ref = &domain.CustomerRef{ID: customer.ID, Name: customer.Name}
	}

	return s.mutateCart(ctx, terminalID, func(l *cart.Ledger) error {
		l.SelectCustomer(ref)
		return nil
	})
}

func (s *Service) terminal(terminalID string) (*terminal, error) {
	if !validTerminalID(terminalID) {
		return nil, fmt.Errorf("%w: invalid terminal id", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terminals[terminalID]
	if !ok {
		t = &terminal{ledger: cart.NewLedger()}
		s.terminals[terminalID] = t
	}
	return t, nil
}

// withLedger runs fn with exclusive access to the terminal's ledger, loading
// the cached snapshot on first use. A terminal left with an empty cart is
// dropped from the registry afterwards.
func (s *Service) withLedger(ctx context.Context, terminalID string, fn func(*cart.Ledger) error) error {
	for {
		t, err := s.terminal(terminalID)
		if err != nil {
			return err
		}

		t.mu.Lock()
		if t.evicted {
			t.mu.Unlock()
			continue
		}
		err = s.runLocked(ctx, terminalID, t, fn)
		t.mu.Unlock()
		return err
	}
}

func (s *Service) runLocked(ctx context.Context, terminalID string, t *terminal, fn func(*cart.Ledger) error) error {
	defer s.evictIfIdle(ctx, terminalID, t)

	if !t.loaded {
		snapshot, ok, err := s.carts.Get(ctx, terminalID)
		switch {
		case err != nil:
			s.logger.Warn("cart snapshot not loaded, using the in-memory cart", zap.String("terminal_id", terminalID), zap.Error(err))
		case ok:
			t.ledger.Restore(*snapshot)
			t.loaded = true
		default:
			t.loaded = true
		}
	}

	return fn(t.ledger)
}

// evictIfIdle runs with t.mu held. The terminal stays registered unless its
// cached snapshot is gone too, so a later request can never reload a stale
// cart.
func (s *Service) evictIfIdle(ctx context.Context, terminalID string, t *terminal) {
	if !t.loaded || !t.ledger.IsEmpty() || t.ledger.Customer() != nil {
		return
	}
	if err := s.carts.Delete(ctx, terminalID); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminals[terminalID] == t {
		delete(s.terminals, terminalID)
	}
	t.evicted = true
}

func (s *Service) terminalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terminals)
}

// mutateCart applies fn and persists the new snapshot. The ledger is restored
// if either step fails.
func (s *Service) mutateCart(ctx context.Context, terminalID string, fn func(*cart.Ledger) error) (CartView, error) {
	var view CartView
	err := s.withLedger(ctx, terminalID, func(l *cart.Ledger) error {
		err := l.Mutate(fn, func(snapshot cart.Snapshot) error {
			return s.carts.Set(ctx, terminalID, snapshot)
		})
		if err != nil {
			return err
		}
		view = cartView(terminalID, l)
		return nil
	})
	return view, err
}

func cartView(terminalID string, l *cart.Ledger) CartView {
	lines := l.Lines()
	view := CartView{
		TerminalID: terminalID,
		Lines:      make([]CartLineView, 0, len(lines)),
		ItemCount:  l.ItemCount(),
		TotalCents: l.Total(),
		Total:      money.Format(l.Total()),
		Customer:   l.Customer(),
	}
	for _, line := range lines {
		view.Lines = append(view.Lines, CartLineView{
			Line:          line,
			SubtotalCents: line.SubtotalCents(),
			UnitPrice:     money.Format(line.UnitPriceCents),
			Subtotal:      money.Format(line.SubtotalCents()),
		})
	}
	return view
}

func parseDiscount(rawType string, value *decimal.Decimal) (pricing.Discount, error) {
	t, err := pricing.ParseDiscountType(rawType)
	if err != nil {
		return pricing.Discount{}, err
	}
	d := pricing.Discount{Type: t}
	if value != nil {
		d.Value = *value
	}
	if err := pricing.Validate(d); err != nil {
		return pricing.Discount{}, err
	}
	return d, nil
}

// approved reports whether the actor may set prices: admins always, anyone
// else only with manager approval.
func approved(ctx context.Context, managerApproved bool) bool {
	if managerApproved {
		return true
	}
	actor, ok := ActorFromContext(ctx)
	return ok && actor.Role == domain.RoleAdmin
}

// checkQuantity bounds a client quantity or delta in either direction.
func checkQuantity(qty int) error {
	if qty > cart.MaxQuantity || qty < -cart.MaxQuantity {
		return fmt.Errorf("%w: quantity must be within %d", store.ErrInvalidInput, cart.MaxQuantity)
	}
	return nil
}

// priceCents converts a client price, rejecting negative or oversized values.
func priceCents(d decimal.Decimal) (int64, error) {
	if d.IsNegative() {
		return 0, store.ErrInvalidInput
	}
	cents, err := money.Cents(d)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return cents, nil
}

func validTerminalID(id string) bool {
	if id == "" || len(id) > maxTerminalIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
