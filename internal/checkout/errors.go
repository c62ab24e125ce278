package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrInvalidPayment = errors.New("invalid payment")
)

// SaleCreationError means the sale header was not created. Nothing was
// written remotely.
type SaleCreationError struct {
	Err error
}

func (e *SaleCreationError) Error() string {
	return fmt.Sprintf("create sale: %v", e.Err)
}

func (e *SaleCreationError) Unwrap() error {
	return e.Err
}

// PartialSaleError means the header SaleID exists remotely but its lines were
// not stored. The header is not rolled back and needs operator follow-up.
type PartialSaleError struct {
	SaleID string
	Err    error
}

func (e *PartialSaleError) Error() string {
	return fmt.Sprintf("sale %s created without lines: %v", e.SaleID, e.Err)
}

func (e *PartialSaleError) Unwrap() error {
	return e.Err
}

// StockDecrementWarning records a failed stock decrement for one line. The sale
// itself stands.
type StockDecrementWarning struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Reason      string `json:"reason"`
	Err         error  `json:"-"`
}

func (w StockDecrementWarning) Error() string {
	return fmt.Sprintf("decrement stock for %s by %d: %s", w.ProductID, w.Quantity, w.Reason)
}

func (w StockDecrementWarning) Unwrap() error {
	return w.Err
}
