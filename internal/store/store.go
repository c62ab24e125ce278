package store

import (
	"context"
	"errors"
	"time"

	"refillpos/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("already exists")
)

// SaleWriter is the part of the remote store the checkout flow writes to. Each
// call stands alone: there is no transaction spanning them.
type SaleWriter interface {
	CreateSale(ctx context.Context, header domain.SaleHeader) (string, error)
	InsertSaleLines(ctx context.Context, lines []domain.SaleLine) error
	DecrementStock(ctx context.Context, req domain.StockDecrement) error
}

type Repository interface {
	SaleWriter

	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)

	ListCustomers(ctx context.Context, includeInactive bool) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListInactiveCustomers(ctx context.Context, since time.Time) ([]domain.Customer, error)

	ListStock(ctx context.Context, storeID string) ([]domain.StockLevel, error)
	GetStock(ctx context.Context, storeID string, productID string) (int, error)
	AdjustStock(ctx context.Context, movement domain.StockMovement) (int, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
