package checkout

import (
	"errors"
	"fmt"

	"refillpos/internal/money"
	"refillpos/internal/pricing"
)

type NoticeKind string

const (
	NoticeSaleCompleted      NoticeKind = "sale_completed"
	NoticeEmptyCart          NoticeKind = "empty_cart"
	NoticeInvalidPayment     NoticeKind = "invalid_payment"
	NoticeSaleCreationFailed NoticeKind = "sale_creation_failed"
	NoticePartialSale        NoticeKind = "partial_sale"
	NoticeStockWarning       NoticeKind = "stock_decrement_warning"
	NoticeDiscountInput      NoticeKind = "discount_input"
	NoticeError              NoticeKind = "error"
)

type NoticeLevel string

const (
	LevelSuccess NoticeLevel = "success"
	LevelWarning NoticeLevel = "warning"
	LevelError   NoticeLevel = "error"
)

// Notice is the user-facing message for one checkout outcome.
type Notice struct {
	Kind      NoticeKind  `json:"kind"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	SaleID    string      `json:"sale_id,omitempty"`
	ProductID string      `json:"product_id,omitempty"`
}

// Notifier receives notices while a checkout runs.
type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// NoticeFor maps a checkout error to its notice. Unknown errors get a generic
// message so internal details never reach the operator screen.
func NoticeFor(err error) Notice {
	var (
		creationErr *SaleCreationError
		partialErr  *PartialSaleError
		discountErr *pricing.DiscountInputError
		warning     StockDecrementWarning
	)

	switch {
	case errors.Is(err, ErrEmptyCart):
		return Notice{Kind: NoticeEmptyCart, Level: LevelError, Message: "Cart is empty. Add at least one item before checkout."}
	case errors.Is(err, ErrInvalidPayment):
		return Notice{Kind: NoticeInvalidPayment, Level: LevelError, Message: err.Error()}
	case errors.As(err, &discountErr):
		return Notice{Kind: NoticeDiscountInput, Level: LevelError, Message: discountErr.Error()}
	case errors.As(err, &partialErr):
		return Notice{
			Kind:    NoticePartialSale,
			Level:   LevelError,
			Message: fmt.Sprintf("Sale %s was recorded without its items. Contact an administrator.", partialErr.SaleID),
			SaleID:  partialErr.SaleID,
		}
	case errors.As(err, &creationErr):
		return Notice{Kind: NoticeSaleCreationFailed, Level: LevelError, Message: "Sale could not be saved. The cart was kept, please try again."}
	case errors.As(err, &warning):
		return warningNotice(warning)
	default:
		return Notice{Kind: NoticeError, Level: LevelError, Message: "Checkout failed."}
	}
}

func warningNotice(w StockDecrementWarning) Notice {
	name := w.ProductName
	if name == "" {
		name = w.ProductID
	}
	return Notice{
		Kind:      NoticeStockWarning,
		Level:     LevelWarning,
		Message:   fmt.Sprintf("Stock for %s was not updated: %s", name, w.Reason),
		ProductID: w.ProductID,
	}
}

// Notices lists the completion notice followed by one notice per stock warning.
func (r *SaleResult) Notices() []Notice {
	out := make([]Notice, 0, 1+len(r.Warnings))
	msg := fmt.Sprintf("Sale %s completed. Total %s", r.SaleID, money.Format(r.TotalCents))
	if r.AmountReceivedCents != nil {
		msg += fmt.Sprintf(", change %s", money.Format(r.ChangeCents))
	}
	out = append(out, Notice{Kind: NoticeSaleCompleted, Level: LevelSuccess, Message: msg + ".", SaleID: r.SaleID})
	for _, w := range r.Warnings {
		n := warningNotice(w)
		n.SaleID = r.SaleID
		out = append(out, n)
	}
	return out
}
