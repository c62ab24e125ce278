package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"refillpos/internal/domain"
	"refillpos/internal/store"
	"refillpos/internal/xid"
)

const (
	DefaultStoreID = "main-store"
	seedStockQty   = 120
	topProducts    = 10
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	customers        map[string]domain.Customer
	inventory        map[string]map[string]int
	stockUpdatedAt   map[string]map[string]time.Time
	movements        []domain.StockMovement
	salesByID        map[string]*domain.Sale
	priceHistoryByID map[string][]domain.ProductPriceHistory
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
	now              func() time.Time
}

// seedUsers builds the initial in-memory accounts for dev/demo mode. Passwords
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to
// fixed dev defaults. The memory store is never used when DATABASE_URL is set.
func seedUsers(logger *zap.Logger, now time.Time) (map[string]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"kasir", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// New returns an empty store with no users.
func New() *Store {
	return &Store{
		products:         make(map[string]domain.Product),
		customers:        make(map[string]domain.Customer),
		inventory:        map[string]map[string]int{DefaultStoreID: {}},
		stockUpdatedAt:   map[string]map[string]time.Time{DefaultStoreID: {}},
		salesByID:        make(map[string]*domain.Sale),
		priceHistoryByID: make(map[string][]domain.ProductPriceHistory),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store stocked with a water depot's usual catalog.
func NewSeeded(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "memory_store"))

	s := New()
	now := s.now()

	users, err := seedUsers(logger, now)
	if err != nil {
		return nil, err
	}
	s.usersByUsername = users

	products := []domain.Product{
		{ID: "prd-refill-ro", SKU: "RF-RO-19", Name: "Isi Ulang Air RO 19L", Category: "refill", Unit: "galon", PriceCents: 3500},
		{ID: "prd-refill-mineral", SKU: "RF-MIN-19", Name: "Isi Ulang Air Mineral 19L", Category: "refill", Unit: "galon", PriceCents: 2500},
		{ID: "prd-refill-hexagonal", SKU: "RF-HEX-19", Name: "Isi Ulang Air Hexagonal 19L", Category: "refill", Unit: "galon", PriceCents: 5000},
		{ID: "prd-galon-baru", SKU: "GL-NEW-19", Name: "Galon Kosong Baru 19L", Category: "container", Unit: "pcs", PriceCents: 45000},
		{ID: "prd-tutup-galon", SKU: "AC-CAP", Name: "Tutup Galon Segel", Category: "accessory", Unit: "pcs", PriceCents: 200},
		{ID: "prd-pompa-manual", SKU: "AC-PUMP", Name: "Pompa Galon Manual", Category: "accessory", Unit: "pcs", PriceCents: 3000},
	}
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
		s.inventory[DefaultStoreID][p.ID] = seedStockQty
		s.stockUpdatedAt[DefaultStoreID][p.ID] = now
	}

	for _, c := range []domain.Customer{
		{ID: "cus-warung-sari", Name: "Warung Bu Sari", Phone: "081234567001", Address: "Jl. Melati 4"},
		{ID: "cus-kos-mawar", Name: "Kos Mawar", Phone: "081234567002", Address: "Jl. Mawar 12", Notes: "antar setiap Senin"},
	} {
		c.Active = true
		c.CreatedAt = now
		s.customers[c.ID] = c
	}

	return s, nil
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active && !includeInactive {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	product.Active = true
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	return &product, nil
}

func validProduct(p domain.Product) bool {
	return strings.TrimSpace(p.SKU) != "" && strings.TrimSpace(p.Name) != "" && p.PriceCents >= 0
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = s.now()
	}
	s.priceHistoryByID[entry.ProductID] = append(s.priceHistoryByID[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.priceHistoryByID[productID])
	if result == nil {
		return []domain.ProductPriceHistory{}, nil
	}
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		return newestFirst(a.ChangedAt, b.ChangedAt, a.ID, b.ID)
	})
	return limitSlice(result, limit), nil
}

func (s *Store) ListCustomers(_ context.Context, includeInactive bool) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if !c.Active && !includeInactive {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = s.now()
	}
	customer.Active = true
	s.customers[customer.ID] = customer
	return &customer, nil
}

// ListInactiveCustomers returns active customers with no purchase since the
// cutoff, oldest activity first.
func (s *Store) ListInactiveCustomers(_ context.Context, since time.Time) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0)
	for _, c := range s.customers {
		if !c.Active {
			continue
		}
		if c.LastPurchaseAt != nil && !c.LastPurchaseAt.Before(since) {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return lastActivity(a).Compare(lastActivity(b))
	})
	return result, nil
}

func lastActivity(c domain.Customer) time.Time {
	if c.LastPurchaseAt != nil {
		return *c.LastPurchaseAt
	}
	return c.CreatedAt
}

func (s *Store) ListStock(_ context.Context, storeID string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	levels := make([]domain.StockLevel, 0, len(s.products))
	for id, p := range s.products {
		if !p.Active {
			continue
		}
		levels = append(levels, domain.StockLevel{
			ProductID: id,
			Name:      p.Name,
			Qty:       s.inventory[storeID][id],
			UpdatedAt: s.stockUpdatedAt[storeID][id],
		})
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		return strings.Compare(a.Name, b.Name)
	})
	return levels, nil
}

func (s *Store) GetStock(_ context.Context, storeID string, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return 0, store.ErrNotFound
	}
	return s.inventory[storeID][productID], nil
}

// AdjustStock applies a signed movement and returns the new quantity. Stock
// never goes below zero.
func (s *Store) AdjustStock(_ context.Context, movement domain.StockMovement) (int, error) {
	if movement.ProductID == "" || movement.Delta == 0 {
		return 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMovementLocked(movement)
}

func (s *Store) applyMovementLocked(movement domain.StockMovement) (int, error) {
	if _, ok := s.products[movement.ProductID]; !ok {
		return 0, store.ErrNotFound
	}
	storeStock, ok := s.inventory[movement.StoreID]
	if !ok {
		storeStock = make(map[string]int)
		s.inventory[movement.StoreID] = storeStock
		s.stockUpdatedAt[movement.StoreID] = make(map[string]time.Time)
	}

	next := storeStock[movement.ProductID] + movement.Delta
	if next < 0 {
		return storeStock[movement.ProductID], store.ErrInsufficientStock
	}

	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = s.now()
	}
	storeStock[movement.ProductID] = next
	s.stockUpdatedAt[movement.StoreID][movement.ProductID] = movement.CreatedAt
	s.movements = append(s.movements, movement)
	return next, nil
}

// Movements returns the stock ledger for one product, newest first.
func (s *Store) Movements(storeID string, productID string) []domain.StockMovement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.StoreID == storeID && m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) CreateSale(_ context.Context, header domain.SaleHeader) (string, error) {
	if header.TotalCents < 0 || strings.TrimSpace(header.PaymentMethod) == "" {
		return "", store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if header.CreatedAt.IsZero() {
		header.CreatedAt = s.now()
	}
	if header.CustomerID != nil {
		c, ok := s.customers[*header.CustomerID]
		if !ok {
			return "", store.ErrNotFound
		}
		at := header.CreatedAt
		c.LastPurchaseAt = &at
		s.customers[c.ID] = c
	}

	id := xid.New("sale")
	s.salesByID[id] = &domain.Sale{ID: id, SaleHeader: header, Lines: []domain.SaleLine{}}
	return id, nil
}

// InsertSaleLines stores the batch all-or-nothing.
func (s *Store) InsertSaleLines(_ context.Context, lines []domain.SaleLine) error {
	if len(lines) == 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		if _, ok := s.salesByID[line.SaleID]; !ok {
			return store.ErrNotFound
		}
		if line.Quantity < 1 || line.UnitPriceCents < 0 {
			return store.ErrInvalidInput
		}
	}
	for _, line := range lines {
		sale := s.salesByID[line.SaleID]
		sale.Lines = append(sale.Lines, line)
	}
	return nil
}

func (s *Store) DecrementStock(_ context.Context, req domain.StockDecrement) error {
	if req.Quantity < 1 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.applyMovementLocked(domain.StockMovement{
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Delta:     -req.Quantity,
		Reason:    "sale",
		ActedBy:   req.ActedBy,
		SaleID:    req.SaleID,
	})
	return err
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 32)
	for _, sale := range s.salesByID {
		if storeID != "" && sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return limitSlice(result, limit), nil
}

func (s *Store) GetDailyReport(_ context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		StoreID:     storeID,
		Date:        from.Format(time.DateOnly),
		ByPayment:   make([]domain.DailyReportPayment, 0, 4),
		TopProducts: make([]domain.DailyReportProduct, 0, topProducts),
	}
	byPayment := map[string]*domain.DailyReportPayment{}
	byProduct := map[string]*domain.DailyReportProduct{}

	for _, sale := range s.salesByID {
		if sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		if sale.Status != domain.SaleStatusCompleted {
			continue
		}

		report.Sales++
		report.GrossSalesCents += sale.TotalCents
		if sale.CustomerID == nil {
			report.WalkInSales++
		} else {
			report.CustomerSales++
		}

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.DailyReportPayment{PaymentMethod: sale.PaymentMethod}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Sales++
		payment.TotalCents += sale.TotalCents

		for _, line := range sale.Lines {
			product := byProduct[line.ProductID]
			if product == nil {
				product = &domain.DailyReportProduct{ProductID: line.ProductID, ProductName: line.ProductName}
				byProduct[line.ProductID] = product
			}
			product.Quantity += int64(line.Quantity)
			product.SubtotalCents += line.SubtotalCents
		}
	}

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(a.PaymentMethod, b.PaymentMethod)
	})

	for _, entry := range byProduct {
		report.TopProducts = append(report.TopProducts, *entry)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.DailyReportProduct) int {
		if a.Quantity != b.Quantity {
			return int(b.Quantity - a.Quantity)
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	report.TopProducts = limitSlice(report.TopProducts, topProducts)

	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return limitSlice(result, limit), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func newestFirst(a, b time.Time, aID, bID string) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return strings.Compare(bID, aID)
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cloneSale(src *domain.Sale) *domain.Sale {
	dst := *src
	dst.Lines = slices.Clone(src.Lines)
	if src.CustomerID != nil {
		id := *src.CustomerID
		dst.CustomerID = &id
	}
	return &dst
}
