package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Unit       string    `json:"unit"`
	PriceCents int64     `json:"price_cents"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	StoreID      string          `json:"store_id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Price        decimal.Decimal `json:"price"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Category *string          `json:"category,omitempty"`
	Unit     *string          `json:"unit,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Active   *bool            `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	OldPriceCents int64     `json:"old_price_cents"`
	NewPriceCents int64     `json:"new_price_cents"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

type Customer struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Address        string     `json:"address"`
	Notes          string     `json:"notes"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

// CustomerRef selects an existing customer for a sale. A nil ref is a walk-in.
type CustomerRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type StockLevel struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Qty       int       `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StockAdjustmentRequest struct {
	StoreID    string `json:"store_id"`
	ProductID  string `json:"product_id"`
	Delta      *int   `json:"delta,omitempty"`
	CountedQty *int   `json:"counted_qty,omitempty"`
	Reason     string `json:"reason"`
}

type StockMovement struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	ActedBy   string    `json:"acted_by"`
	SaleID    string    `json:"sale_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StockAdjustmentResponse struct {
	ProductID   string `json:"product_id"`
	PreviousQty int    `json:"previous_qty"`
	NewQty      int    `json:"new_qty"`
	Delta       int    `json:"delta"`
}

// SaleHeader is the record created first at checkout. The remote store assigns
// its identifier.
type SaleHeader struct {
	StoreID             string    `json:"store_id"`
	TerminalID          string    `json:"terminal_id"`
	CreatedAt           time.Time `json:"created_at"`
	TotalCents          int64     `json:"total_cents"`
	CustomerID          *string   `json:"customer_id,omitempty"`
	PaymentMethod       string    `json:"payment_method"`
	AmountReceivedCents *int64    `json:"amount_received_cents,omitempty"`
	ChangeCents         int64     `json:"change_cents"`
	Status              string    `json:"status"`
	CreatedBy           string    `json:"created_by"`
}

// SaleLine keeps the product name and unit price as they were at sale time.
type SaleLine struct {
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	DiscountType   string `json:"discount_type,omitempty"`
	DiscountValue  string `json:"discount_value,omitempty"`
	Note           string `json:"note,omitempty"`
}

type StockDecrement struct {
	StoreID   string `json:"store_id"`
	SaleID    string `json:"sale_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	ActedBy   string `json:"acted_by"`
}

type Sale struct {
	ID string `json:"id"`
	SaleHeader
	Lines []SaleLine `json:"lines"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	SessionID   string `json:"session_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username  string
	Role      string
	SessionID string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type DailyReportPayment struct {
	PaymentMethod string `json:"payment_method"`
	Sales         int64  `json:"sales"`
	TotalCents    int64  `json:"total_cents"`
}

type DailyReportProduct struct {
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name"`
	Quantity      int64  `json:"quantity"`
	SubtotalCents int64  `json:"subtotal_cents"`
}

type DailyReport struct {
	StoreID         string               `json:"store_id"`
	Date            string               `json:"date"`
	Sales           int64                `json:"sales"`
	GrossSalesCents int64                `json:"gross_sales_cents"`
	WalkInSales     int64                `json:"walk_in_sales"`
	CustomerSales   int64                `json:"customer_sales"`
	ByPayment       []DailyReportPayment `json:"by_payment"`
	TopProducts     []DailyReportProduct `json:"top_products"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	SaleStatusCompleted = "completed"
)

const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentEwallet      = "ewallet"
	PaymentBankTransfer = "bank_transfer"
)
