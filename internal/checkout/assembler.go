// Package checkout turns a terminal's cart into a recorded sale.
//
// The remote store offers no transaction across the sale header, its lines and
// the stock decrements, so Finalize performs them as separate calls and reports
// exactly how far it got.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"refillpos/internal/cart"
	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/pricing"
	"refillpos/internal/store"
)

const defaultConcurrency = 4

type Request struct {
	StoreID        string
	TerminalID     string
	PaymentMethod  string
	AmountReceived *int64
	// Customer overrides the customer selected on the ledger when set.
	Customer  *domain.CustomerRef
	CreatedBy string
}

// Draft is the immutable sale built from a ledger just before submission.
type Draft struct {
	StoreID             string
	TerminalID          string
	CreatedAt           time.Time
	TotalCents          int64
	CustomerID          *string
	PaymentMethod       string
	AmountReceivedCents *int64
	ChangeCents         int64
	CreatedBy           string
	Status              string
	Lines               []cart.Line
}

type SaleResult struct {
	SaleID              string                  `json:"sale_id"`
	Lines               []cart.Line             `json:"lines"`
	TotalCents          int64                   `json:"total_cents"`
	AmountReceivedCents *int64                  `json:"amount_received_cents,omitempty"`
	ChangeCents         int64                   `json:"change_cents"`
	PaymentMethod       string                  `json:"payment_method"`
	CustomerID          *string                 `json:"customer_id,omitempty"`
	CreatedBy           string                  `json:"created_by"`
	CreatedAt           time.Time               `json:"created_at"`
	Warnings            []StockDecrementWarning `json:"warnings,omitempty"`
}

type Assembler struct {
	remote      store.SaleWriter
	logger      *zap.Logger
	notifier    Notifier
	now         func() time.Time
	concurrency int
	timeout     time.Duration
	storeID     string
}

type Option func(*Assembler)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(a *Assembler) {
		if n != nil {
			a.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithConcurrency bounds the number of stock decrements in flight. One makes
// them sequential.
func WithConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithTimeout bounds the whole remote sequence. The sequence is detached from
// caller cancellation, so this is the only way it stops early.
func WithTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		a.timeout = d
	}
}

func WithStoreID(storeID string) Option {
	return func(a *Assembler) {
		a.storeID = strings.TrimSpace(storeID)
	}
}

func New(remote store.SaleWriter, opts ...Option) *Assembler {
	a := &Assembler{
		remote:      remote,
		logger:      zap.NewNop(),
		notifier:    discardNotifier{},
		now:         func() time.Time { return time.Now().UTC() },
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "checkout"))
	return a
}

// SupportedPaymentMethod normalizes method and reports whether it is accepted.
func SupportedPaymentMethod(method string) (string, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(method)), " ", "_")
	switch normalized {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentEwallet, domain.PaymentBankTransfer:
		return normalized, true
	case "e-wallet", "qris":
		return domain.PaymentEwallet, true
	case "transfer":
		return domain.PaymentBankTransfer, true
	default:
		return "", false
	}
}

// BuildDraft validates the ledger and payment locally. It never touches the
// remote store.
func (a *Assembler) BuildDraft(ledger *cart.Ledger, req Request) (Draft, error) {
	if ledger == nil || ledger.IsEmpty() {
		return Draft{}, ErrEmptyCart
	}

	method, ok := SupportedPaymentMethod(req.PaymentMethod)
	if !ok {
		return Draft{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidPayment, req.PaymentMethod)
	}

	total, err := linesTotal(ledger.Lines())
	if err != nil {
		return Draft{}, fmt.Errorf("%w: cart total is out of range", ErrInvalidPayment)
	}
	draft := Draft{
		StoreID:       firstNonEmpty(req.StoreID, a.storeID),
		TerminalID:    req.TerminalID,
		CreatedAt:     a.now(),
		TotalCents:    total,
		PaymentMethod: method,
		CreatedBy:     req.CreatedBy,
		Status:        domain.SaleStatusCompleted,
		Lines:         ledger.Lines(),
	}

	customer := req.Customer
	if customer == nil {
		customer = ledger.Customer()
	}
	if customer != nil && strings.TrimSpace(customer.ID) != "" {
		id := strings.TrimSpace(customer.ID)
		draft.CustomerID = &id
	}

	if method == domain.PaymentCash {
		if req.AmountReceived == nil {
			return Draft{}, fmt.Errorf("%w: amount received is required for cash", ErrInvalidPayment)
		}
		received := *req.AmountReceived
		if received < 0 || received > money.MaxCents {
			return Draft{}, fmt.Errorf("%w: amount received is out of range", ErrInvalidPayment)
		}
		if received < total {
			return Draft{}, fmt.Errorf("%w: amount received is less than the total", ErrInvalidPayment)
		}
		draft.AmountReceivedCents = &received
		draft.ChangeCents = received - total
	}

	return draft, nil
}

// Finalize records the ledger as a sale. On success the ledger and its
// selected customer are cleared. On any error the ledger is left as it was.
// Stock decrement failures do not fail the sale; they come back as warnings.
// Every outcome is also sent to the notifier.
func (a *Assembler) Finalize(ctx context.Context, ledger *cart.Ledger, req Request) (*SaleResult, error) {
	result, err := a.finalize(ctx, ledger, req)
	if err != nil {
		a.notifier.Notify(NoticeFor(err))
		return nil, err
	}
	for _, n := range result.Notices() {
		a.notifier.Notify(n)
	}
	return result, nil
}

func (a *Assembler) finalize(ctx context.Context, ledger *cart.Ledger, req Request) (*SaleResult, error) {
	draft, err := a.BuildDraft(ledger, req)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	saleID, err := a.remote.CreateSale(ctx, domain.SaleHeader{
		StoreID:             draft.StoreID,
		TerminalID:          draft.TerminalID,
		CreatedAt:           draft.CreatedAt,
		TotalCents:          draft.TotalCents,
		CustomerID:          draft.CustomerID,
		PaymentMethod:       draft.PaymentMethod,
		AmountReceivedCents: draft.AmountReceivedCents,
		ChangeCents:         draft.ChangeCents,
		Status:              draft.Status,
		CreatedBy:           draft.CreatedBy,
	})
	if err != nil {
		a.logger.Error("sale header not created",
			zap.String("terminal_id", draft.TerminalID),
			zap.Int64("total_cents", draft.TotalCents),
			zap.Error(err),
		)
		return nil, &SaleCreationError{Err: err}
	}

	if err := a.remote.InsertSaleLines(ctx, saleLines(saleID, draft.Lines)); err != nil {
		a.logger.Error("sale lines not stored, header left in place",
			zap.String("sale_id", saleID),
			zap.Int("lines", len(draft.Lines)),
			zap.Error(err),
		)
		return nil, &PartialSaleError{SaleID: saleID, Err: err}
	}

	warnings := a.decrementStock(ctx, draft, saleID)

	ledger.Clear()

	result := &SaleResult{
		SaleID:              saleID,
		Lines:               draft.Lines,
		TotalCents:          draft.TotalCents,
		AmountReceivedCents: draft.AmountReceivedCents,
		ChangeCents:         draft.ChangeCents,
		PaymentMethod:       draft.PaymentMethod,
		CustomerID:          draft.CustomerID,
		CreatedBy:           draft.CreatedBy,
		CreatedAt:           draft.CreatedAt,
		Warnings:            warnings,
	}

	a.logger.Info("sale completed",
		zap.String("sale_id", saleID),
		zap.String("terminal_id", draft.TerminalID),
		zap.Int64("total_cents", draft.TotalCents),
		zap.Int("stock_warnings", len(warnings)),
	)
	return result, nil
}

// decrementStock issues one call per catalog line. Lines have no ordering
// dependency on each other. Warnings come back in line order.
func (a *Assembler) decrementStock(ctx context.Context, draft Draft, saleID string) []StockDecrementWarning {
	slots := make([]*StockDecrementWarning, len(draft.Lines))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, line := range draft.Lines {
		if line.Custom {
			continue
		}
		g.Go(func() error {
			err := a.remote.DecrementStock(ctx, domain.StockDecrement{
				StoreID:   draft.StoreID,
				SaleID:    saleID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				ActedBy:   draft.CreatedBy,
			})
			if err != nil {
				a.logger.Warn("stock decrement failed",
					zap.String("sale_id", saleID),
					zap.String("product_id", line.ProductID),
					zap.Int("quantity", line.Quantity),
					zap.Error(err),
				)
				slots[i] = &StockDecrementWarning{
					ProductID:   line.ProductID,
					ProductName: line.Name,
					Quantity:    line.Quantity,
					Reason:      stockFailureReason(err),
					Err:         err,
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var warnings []StockDecrementWarning
	for _, w := range slots {
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

// linesTotal sums the line subtotals with overflow checks. Totals beyond
// money.MaxCents are refused.
func linesTotal(lines []cart.Line) (int64, error) {
	var total int64
	for _, line := range lines {
		sub, err := money.MulQty(line.UnitPriceCents, line.Quantity)
		if err != nil {
			return 0, err
		}
		if total, err = money.Add(total, sub); err != nil {
			return 0, err
		}
	}
	if total < 0 || total > money.MaxCents {
		return 0, money.ErrOutOfRange
	}
	return total, nil
}

// stockFailureReason is the client-facing text for a failed decrement. Store
// and driver messages stay in the log.
func stockFailureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient stock"
	case errors.Is(err, store.ErrNotFound):
		return "product not stocked at this store"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "stock update timed out"
	default:
		return "stock update failed"
	}
}

func saleLines(saleID string, lines []cart.Line) []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		sl := domain.SaleLine{
			SaleID:         saleID,
			ProductID:      line.ProductID,
			ProductName:    line.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			SubtotalCents:  line.SubtotalCents(),
			Note:           line.Note,
		}
		if line.DiscountType != "" && line.DiscountType != pricing.DiscountNone {
			sl.DiscountType = string(line.DiscountType)
			sl.DiscountValue = line.DiscountValue.String()
		}
		out = append(out, sl)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
