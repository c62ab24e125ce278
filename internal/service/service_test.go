package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refillpos/internal/cache"
	"refillpos/internal/cart"
	"refillpos/internal/checkout"
	"refillpos/internal/domain"
	"refillpos/internal/pricing"
	"refillpos/internal/store"
	"refillpos/internal/store/memory"
)

const testTerminal = "T-01"

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	return New(repo, nil, nil, Config{StoreID: memory.DefaultStoreID}), repo
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCartLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	_, key, err := svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 2})
	require.NoError(t, err)
	assert.Equal(t, cart.Key("prd-refill-ro", 3500), key)

	view, _, err := svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-mineral", QuantityDelta: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(9500), view.TotalCents)
	assert.Equal(t, "95.00", view.Total)
	assert.Equal(t, 3, view.ItemCount)

	view, _, err = svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: -1})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), view.TotalCents)

	view, err = svc.RemoveFromCart(ctx, testTerminal, key)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "prd-refill-mineral", view.Lines[0].ProductID)

	_, err = svc.AdjustLine(ctx, testTerminal, "missing@1.00", AdjustLineRequest{Delta: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	view, err = svc.ClearCart(ctx, testTerminal)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Zero(t, view.TotalCents)
}

func TestTerminalsHaveSeparateCarts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	_, _, err := svc.AddToCart(ctx, "T-01", AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 1})
	require.NoError(t, err)

	other, err := svc.GetCart(ctx, "T-02")
	require.NoError(t, err)
	assert.Empty(t, other.Lines)

	_, err = svc.GetCart(ctx, "bad id/..")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestAddToCartRejectsUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-nope", QuantityDelta: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPriceChangesNeedApprovalForCashiers(t *testing.T) {
	svc, repo := newTestService(t)

	_, _, err := svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{
		ProductID: "prd-refill-ro", QuantityDelta: 1, OverridePrice: dec("3000"),
	})
	assert.ErrorIs(t, err, ErrApprovalRequired)

	view, key, err := svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{
		ProductID: "prd-refill-ro", QuantityDelta: 1, OverridePrice: dec("30"), ManagerApproved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, cart.Key("prd-refill-ro", 3000), key)
	assert.Equal(t, int64(3000), view.TotalCents)

	view, _, err = svc.AddToCart(adminCtx(), testTerminal, AddToCartRequest{
		ProductID: "prd-refill-ro", QuantityDelta: 1, DiscountType: "percent", DiscountValue: dec("10"), Note: "langganan",
	})
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	assert.Equal(t, int64(3150), view.Lines[1].UnitPriceCents)
	assert.Equal(t, pricing.DiscountPercent, view.Lines[1].DiscountType)

	now := time.Now().UTC()
	logs, err := repo.ListAuditLogs(context.Background(), memory.DefaultStoreID, now.Add(-time.Hour), now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestAddToCartRejectsBadDiscount(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.AddToCart(adminCtx(), testTerminal, AddToCartRequest{
		ProductID: "prd-refill-ro", QuantityDelta: 1, DiscountType: "percent", DiscountValue: dec("120"),
	})
	var discountErr *pricing.DiscountInputError
	assert.ErrorAs(t, err, &discountErr)

	view, err := svc.GetCart(adminCtx(), testTerminal)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCustomLine(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.AddCustomLine(cashierCtx(), testTerminal, CustomLineRequest{Name: "Cuci Galon", Price: decimal.NewFromInt(5), Quantity: 1})
	assert.ErrorIs(t, err, ErrApprovalRequired)

	view, key, err := svc.AddCustomLine(adminCtx(), testTerminal, CustomLineRequest{Name: "Cuci Galon", Price: decimal.NewFromInt(5), Quantity: 2})
	require.NoError(t, err)
	assert.True(t, cart.IsCustomProductID(view.Lines[0].ProductID))
	assert.Equal(t, cart.Key("custom:cuci-galon", 500), key)
	assert.Equal(t, int64(1000), view.TotalCents)
}

func TestSelectCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	view, err := svc.SelectCustomer(ctx, testTerminal, SelectCustomerRequest{CustomerID: "cus-kos-mawar"})
	require.NoError(t, err)
	require.NotNil(t, view.Customer)
	assert.Equal(t, "Kos Mawar", view.Customer.Name)

	_, err = svc.SelectCustomer(ctx, testTerminal, SelectCustomerRequest{CustomerID: "cus-missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	view, err = svc.SelectCustomer(ctx, testTerminal, SelectCustomerRequest{})
	require.NoError(t, err)
	assert.Nil(t, view.Customer)
}

type failingCache struct {
	cache.NoopCartCache
}

func (failingCache) Set(context.Context, string, cart.Snapshot) error {
	return errors.New("cache down")
}

func TestCartChangeRevertsWhenSnapshotNotSaved(t *testing.T) {
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	svc := New(repo, failingCache{}, nil, Config{})

	_, _, err = svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 1})
	require.Error(t, err)

	view, err := svc.GetCart(cashierCtx(), testTerminal)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCartSurvivesRestartThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	carts := cache.NewRedisCartCache(client, time.Hour)

	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)

	first := New(repo, carts, nil, Config{})
	_, _, err = first.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-hexagonal", QuantityDelta: 3})
	require.NoError(t, err)
	_, err = first.SelectCustomer(cashierCtx(), testTerminal, SelectCustomerRequest{CustomerID: "cus-warung-sari"})
	require.NoError(t, err)

	restarted := New(repo, carts, nil, Config{})
	view, err := restarted.GetCart(cashierCtx(), testTerminal)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), view.TotalCents)
	require.NotNil(t, view.Customer)
	assert.Equal(t, "cus-warung-sari", view.Customer.ID)

	_, err = restarted.FinalizeSale(cashierCtx(), testTerminal, FinalizeRequest{PaymentMethod: "qris"})
	require.NoError(t, err)
	_, found, err := carts.Get(context.Background(), testTerminal)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFinalizeSaleCash(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx()

	_, _, err := svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 2})
	require.NoError(t, err)
	_, _, err = svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-tutup-galon", QuantityDelta: 2})
	require.NoError(t, err)

	resp, err := svc.FinalizeSale(ctx, testTerminal, FinalizeRequest{PaymentMethod: "cash", AmountReceived: dec("100")})
	require.NoError(t, err)
	require.NotNil(t, resp.Sale)
	assert.Equal(t, int64(7400), resp.Sale.TotalCents)
	assert.Equal(t, int64(2600), resp.Sale.ChangeCents)
	assert.Equal(t, "kasir", resp.Sale.CreatedBy)
	assert.Contains(t, resp.Receipt, "74.00")
	require.Len(t, resp.Notices, 1)
	assert.Equal(t, checkout.NoticeSaleCompleted, resp.Notices[0].Kind)

	qty, err := repo.GetStock(context.Background(), memory.DefaultStoreID, "prd-refill-ro")
	require.NoError(t, err)
	assert.Equal(t, 118, qty)

	sale, err := svc.GetSale(ctx, resp.Sale.SaleID)
	require.NoError(t, err)
	assert.Len(t, sale.Lines, 2)

	view, err := svc.GetCart(ctx, testTerminal)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestFinalizeSaleEmptyCart(t *testing.T) {
	var notices []checkout.Notice
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	svc := New(repo, nil, nil, Config{Notifier: checkout.NotifierFunc(func(n checkout.Notice) {
		notices = append(notices, n)
	})})

	_, err = svc.FinalizeSale(cashierCtx(), testTerminal, FinalizeRequest{PaymentMethod: "cash", AmountReceived: dec("10")})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
	require.Len(t, notices, 1)
	assert.Equal(t, checkout.NoticeEmptyCart, notices[0].Kind)
}

func TestFinalizeSaleWithNewCustomer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := cashierCtx()
	newCustomer := &domain.CustomerCreateRequest{Name: "Pak Budi", Phone: "0812"}

	_, _, err := svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-mineral", QuantityDelta: 1})
	require.NoError(t, err)

	_, err = svc.FinalizeSale(ctx, testTerminal, FinalizeRequest{PaymentMethod: "cash", AmountReceived: dec("1"), NewCustomer: newCustomer})
	assert.ErrorIs(t, err, checkout.ErrInvalidPayment)
	customers, err := repo.ListCustomers(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, customers, 2)

	resp, err := svc.FinalizeSale(ctx, testTerminal, FinalizeRequest{PaymentMethod: "card", NewCustomer: newCustomer})
	require.NoError(t, err)
	require.NotNil(t, resp.Sale.CustomerID)

	customer, err := repo.GetCustomer(context.Background(), *resp.Sale.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Pak Budi", customer.Name)
	assert.NotNil(t, customer.LastPurchaseAt)
}

func TestCashierCannotManageCatalog(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{SKU: "X", Name: "X", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.AdjustInventory(cashierCtx(), domain.StockAdjustmentRequest{ProductID: "prd-refill-ro", Reason: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.DailyReport(cashierCtx(), "", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateProductWithInitialStock(t *testing.T) {
	svc, repo := newTestService(t)

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU: "rf-alk-19", Name: "Isi Ulang Alkali 19L", Category: "refill", Unit: "galon",
		Price: decimal.RequireFromString("60.00"), InitialStock: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "RF-ALK-19", product.SKU)
	assert.Equal(t, int64(6000), product.PriceCents)

	qty, err := repo.GetStock(context.Background(), memory.DefaultStoreID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, qty)
}

func TestUpdateProductRecordsPriceHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()

	_, err := svc.UpdateProduct(ctx, "prd-refill-ro", domain.ProductUpdateRequest{Price: dec("40")})
	require.NoError(t, err)

	history, err := svc.ListProductPriceHistory(ctx, "prd-refill-ro", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(3500), history[0].OldPriceCents)
	assert.Equal(t, int64(4000), history[0].NewPriceCents)
	assert.Equal(t, "admin", history[0].ChangedBy)

	_, err = svc.UpdateProduct(ctx, "prd-missing", domain.ProductUpdateRequest{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdjustInventory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := adminCtx()
	counted := 100
	delta := -5

	resp, err := svc.AdjustInventory(ctx, domain.StockAdjustmentRequest{ProductID: "prd-galon-baru", CountedQty: &counted, Reason: "stock opname"})
	require.NoError(t, err)
	assert.Equal(t, 120, resp.PreviousQty)
	assert.Equal(t, 100, resp.NewQty)
	assert.Equal(t, -20, resp.Delta)

	resp, err = svc.AdjustInventory(ctx, domain.StockAdjustmentRequest{ProductID: "prd-galon-baru", Delta: &delta, Reason: "rusak"})
	require.NoError(t, err)
	assert.Equal(t, 95, resp.NewQty)

	_, err = svc.AdjustInventory(ctx, domain.StockAdjustmentRequest{ProductID: "prd-galon-baru", Delta: &delta, CountedQty: &counted, Reason: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	tooMany := -1000
	_, err = svc.AdjustInventory(ctx, domain.StockAdjustmentRequest{ProductID: "prd-galon-baru", Delta: &tooMany, Reason: "x"})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
}

func TestDailyReportAndAuditLogs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	_, _, err := svc.AddToCart(ctx, testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 3})
	require.NoError(t, err)
	_, err = svc.FinalizeSale(ctx, testTerminal, FinalizeRequest{PaymentMethod: "ewallet"})
	require.NoError(t, err)

	report, err := svc.DailyReport(adminCtx(), "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Sales)
	assert.Equal(t, int64(10500), report.GrossSalesCents)

	logs, err := svc.ListAuditLogs(adminCtx(), "", "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "sale_create", logs[0].Action)

	_, err = svc.DailyReport(adminCtx(), "", "02-05-2026")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestInactiveCustomersDefaultsToThirtyDays(t *testing.T) {
	svc, _ := newTestService(t)
	customers, err := svc.ListInactiveCustomers(cashierCtx(), 0)
	require.NoError(t, err)
	assert.Len(t, customers, 2)
}

func TestCartRejectsOutOfRangeInput(t *testing.T) {
	svc, repo := newTestService(t)

	_, _, err := svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 1 << 62})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, _, err = svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: -(cart.MaxQuantity + 1)})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, _, err = svc.AddToCart(adminCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 1, OverridePrice: dec("1e15")})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, _, err = svc.AddCustomLine(adminCtx(), testTerminal, CustomLineRequest{Name: "Galon Emas", Price: decimal.RequireFromString("10000000000.01"), Quantity: 1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, _, err = svc.AddCustomLine(adminCtx(), testTerminal, CustomLineRequest{Name: "Cuci Galon", Price: decimal.NewFromInt(5), Quantity: cart.MaxQuantity + 1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, key, err := svc.AddToCart(cashierCtx(), testTerminal, AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: cart.MaxQuantity})
	require.NoError(t, err)
	_, err = svc.AdjustLine(cashierCtx(), testTerminal, key, AdjustLineRequest{Delta: 1})
	assert.ErrorIs(t, err, cart.ErrLimitExceeded)
	_, err = svc.AdjustLine(cashierCtx(), testTerminal, key, AdjustLineRequest{Delta: 1 << 62})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	view, err := svc.GetCart(cashierCtx(), testTerminal)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, cart.MaxQuantity, view.Lines[0].Quantity)
	assert.Equal(t, int64(3500)*cart.MaxQuantity, view.TotalCents)

	_, err = svc.FinalizeSale(cashierCtx(), testTerminal, FinalizeRequest{PaymentMethod: "cash", AmountReceived: dec("1e20")})
	assert.ErrorIs(t, err, checkout.ErrInvalidPayment)

	now := time.Now().UTC()
	sales, err := repo.ListSales(context.Background(), memory.DefaultStoreID, now.Add(-time.Hour), now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateProductRejectsOversizedPrice(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: "GLN-XL", Name: "Galon XL", Price: decimal.RequireFromString("1e12")})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestEmptyTerminalsLeaveTheRegistry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := cashierCtx()

	for _, id := range []string{"T-01", "T-02", "T-03"} {
		_, err := svc.GetCart(ctx, id)
		require.NoError(t, err)
	}
	assert.Zero(t, svc.terminalCount())

	_, key, err := svc.AddToCart(ctx, "T-01", AddToCartRequest{ProductID: "prd-refill-ro", QuantityDelta: 1})
	require.NoError(t, err)
	_, err = svc.SelectCustomer(ctx, "T-02", SelectCustomerRequest{CustomerID: "cus-warung-sari"})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.terminalCount())

	_, err = svc.RemoveFromCart(ctx, "T-01", key)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.terminalCount())

	_, err = svc.FinalizeSale(ctx, "T-02", FinalizeRequest{PaymentMethod: "qris"})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
	_, err = svc.SelectCustomer(ctx, "T-02", SelectCustomerRequest{})
	require.NoError(t, err)
	assert.Zero(t, svc.terminalCount())
}

type unreadableCache struct {
	cache.NoopCartCache
	deletes int
}

func (*unreadableCache) Get(context.Context, string) (*cart.Snapshot, bool, error) {
	return nil, false, errors.New("cache down")
}

func (c *unreadableCache) Delete(context.Context, string) error {
	c.deletes++
	return nil
}

func TestTerminalStaysWhenSnapshotUnreadable(t *testing.T) {
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	carts := &unreadableCache{}
	svc := New(repo, carts, nil, Config{})

	_, err = svc.GetCart(cashierCtx(), testTerminal)
	require.NoError(t, err)
	assert.Zero(t, carts.deletes)
	assert.Equal(t, 1, svc.terminalCount())
}
