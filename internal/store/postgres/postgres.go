package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"refillpos/internal/domain"
	"refillpos/internal/store"
	"refillpos/internal/xid"
)

const topProducts = 10

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, name, category, unit, price_cents, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Unit, &p.PriceCents, &p.Active, &p.CreatedAt); err != nil {
		return p, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true OR $1
		ORDER BY category, name
	`, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.SKU) == "" || strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category, unit, price_cents, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, product.ID, product.SKU, product.Name, product.Category, product.Unit, product.PriceCents, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit = $4, price_cents = $5, active = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Category, product.Unit, product.PriceCents, product.Active,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price_cents, new_price_cents, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPriceCents, entry.NewPriceCents, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price_cents, new_price_cents, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, 16)
	for rows.Next() {
		var h domain.ProductPriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.OldPriceCents, &h.NewPriceCents, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		h.ChangedAt = h.ChangedAt.UTC()
		history = append(history, h)
	}
	return history, rows.Err()
}

const customerColumns = `id, name, phone, address, notes, active, created_at, last_purchase_at`

func scanCustomer(row interface{ Scan(...any) error }) (domain.Customer, error) {
	var (
		c    domain.Customer
		last sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Notes, &c.Active, &c.CreatedAt, &last); err != nil {
		return c, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if last.Valid {
		t := last.Time.UTC()
		c.LastPurchaseAt = &t
	}
	return c, nil
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) ListCustomers(ctx context.Context, includeInactive bool) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE active = true OR $1
		ORDER BY lower(name)
	`, includeInactive)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	customer.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, address, notes, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, customer.Phone, customer.Address, customer.Notes, customer.Active, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListInactiveCustomers(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	return s.queryCustomers(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE active = true AND (last_purchase_at IS NULL OR last_purchase_at < $1)
		ORDER BY COALESCE(last_purchase_at, created_at) ASC
	`, since)
}

func (s *Store) ListStock(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(i.qty, 0), COALESCE(i.updated_at, p.created_at)
		FROM products p
		LEFT JOIN inventory_stocks i ON i.product_id = p.id AND i.store_id = $1
		WHERE p.active = true
		ORDER BY p.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0, 64)
	for rows.Next() {
		var l domain.StockLevel
		if err := rows.Scan(&l.ProductID, &l.Name, &l.Qty, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.UpdatedAt = l.UpdatedAt.UTC()
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (s *Store) GetStock(ctx context.Context, storeID string, productID string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(i.qty, 0)
		FROM products p
		LEFT JOIN inventory_stocks i ON i.product_id = p.id AND i.store_id = $1
		WHERE p.id = $2
	`, storeID, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return qty, err
}

// AdjustStock applies a signed movement inside one transaction and returns the
// new quantity.
func (s *Store) AdjustStock(ctx context.Context, movement domain.StockMovement) (int, error) {
	if movement.ProductID == "" || movement.Delta == 0 {
		return 0, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(i.qty, 0)
		FROM products p
		LEFT JOIN inventory_stocks i ON i.product_id = p.id AND i.store_id = $1
		WHERE p.id = $2
		FOR UPDATE OF p
	`, movement.StoreID, movement.ProductID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	next := current + movement.Delta
	if next < 0 {
		return current, store.ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_stocks (store_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, movement.StoreID, movement.ProductID, next); err != nil {
		return 0, err
	}
	if err := insertMovement(ctx, tx, movement); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func insertMovement(ctx context.Context, tx *sql.Tx, m domain.StockMovement) error {
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, store_id, product_id, delta, reason, acted_by, sale_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, m.ID, m.StoreID, m.ProductID, m.Delta, m.Reason, m.ActedBy, nullIfEmpty(m.SaleID), m.CreatedAt)
	return err
}

// CreateSale inserts the header and returns the id generated by the database.
func (s *Store) CreateSale(ctx context.Context, header domain.SaleHeader) (string, error) {
	if header.TotalCents < 0 || strings.TrimSpace(header.PaymentMethod) == "" {
		return "", store.ErrInvalidInput
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			store_id, terminal_id, created_at, total_cents, customer_id,
			payment_method, amount_received_cents, change_cents, status, created_by
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id
	`,
		header.StoreID, header.TerminalID, header.CreatedAt, header.TotalCents, nullString(header.CustomerID),
		header.PaymentMethod, nullInt64(header.AmountReceivedCents), header.ChangeCents, header.Status, header.CreatedBy,
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return "", store.ErrNotFound
		}
		return "", err
	}

	if header.CustomerID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers SET last_purchase_at = GREATEST(COALESCE(last_purchase_at, $2), $2)
			WHERE id = $1
		`, *header.CustomerID, header.CreatedAt); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// InsertSaleLines writes the whole batch in one transaction.
func (s *Store) InsertSaleLines(ctx context.Context, lines []domain.SaleLine) error {
	if len(lines) == 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sale_items (
			sale_id, product_id, product_name, quantity, unit_price_cents,
			subtotal_cents, discount_type, discount_value, note
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, line := range lines {
		if line.Quantity < 1 || line.UnitPriceCents < 0 {
			return store.ErrInvalidInput
		}
		if _, err := stmt.ExecContext(ctx,
			line.SaleID, line.ProductID, line.ProductName, line.Quantity, line.UnitPriceCents,
			line.SubtotalCents, line.DiscountType, line.DiscountValue, line.Note,
		); err != nil {
			if isForeignKeyViolation(err) {
				return store.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

// DecrementStock removes sold quantity only when enough is on hand.
func (s *Store) DecrementStock(ctx context.Context, req domain.StockDecrement) error {
	if req.Quantity < 1 || req.ProductID == "" {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE inventory_stocks
		SET qty = qty - $3, updated_at = now()
		WHERE store_id = $1 AND product_id = $2 AND qty >= $3
	`, req.StoreID, req.ProductID, req.Quantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, req.ProductID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrInsufficientStock
	}

	if err := insertMovement(ctx, tx, domain.StockMovement{
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Delta:     -req.Quantity,
		Reason:    "sale",
		ActedBy:   req.ActedBy,
		SaleID:    req.SaleID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

const saleColumns = `id, store_id, terminal_id, created_at, total_cents, customer_id,
	payment_method, amount_received_cents, change_cents, status, created_by`

func scanSale(row interface{ Scan(...any) error }) (domain.Sale, error) {
	var (
		sale     domain.Sale
		customer sql.NullString
		received sql.NullInt64
	)
	err := row.Scan(
		&sale.ID, &sale.StoreID, &sale.TerminalID, &sale.CreatedAt, &sale.TotalCents, &customer,
		&sale.PaymentMethod, &received, &sale.ChangeCents, &sale.Status, &sale.CreatedBy,
	)
	if err != nil {
		return sale, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if customer.Valid {
		sale.CustomerID = &customer.String
	}
	if received.Valid {
		sale.AmountReceivedCents = &received.Int64
	}
	sale.Lines = []domain.SaleLine{}
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sales := []domain.Sale{sale}
	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachLines(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) attachLines(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	index := make(map[string]int, len(sales))
	ids := make([]string, 0, len(sales))
	for i, sale := range sales {
		index[sale.ID] = i
		ids = append(ids, sale.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price_cents,
			subtotal_cents, discount_type, discount_value, note
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, id
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.SaleLine
		if err := rows.Scan(
			&l.SaleID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPriceCents,
			&l.SubtotalCents, &l.DiscountType, &l.DiscountValue, &l.Note,
		); err != nil {
			return err
		}
		i := index[l.SaleID]
		sales[i].Lines = append(sales[i].Lines, l)
	}
	return rows.Err()
}

func (s *Store) GetDailyReport(ctx context.Context, storeID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		StoreID:     storeID,
		Date:        from.Format(time.DateOnly),
		ByPayment:   make([]domain.DailyReportPayment, 0, 4),
		TopProducts: make([]domain.DailyReportProduct, 0, topProducts),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(total_cents),0)::bigint,
			COUNT(*) FILTER (WHERE customer_id IS NULL)::bigint,
			COUNT(*) FILTER (WHERE customer_id IS NOT NULL)::bigint
		FROM sales
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
			AND status = $4
	`, storeID, from, to, domain.SaleStatusCompleted).Scan(
		&report.Sales,
		&report.GrossSalesCents,
		&report.WalkInSales,
		&report.CustomerSales,
	)
	if err != nil {
		return report, err
	}

	payRows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
			AND status = $4
		GROUP BY payment_method
		ORDER BY payment_method
	`, storeID, from, to, domain.SaleStatusCompleted)
	if err != nil {
		return report, err
	}
	defer payRows.Close()
	for payRows.Next() {
		var p domain.DailyReportPayment
		if err := payRows.Scan(&p.PaymentMethod, &p.Sales, &p.TotalCents); err != nil {
			return report, err
		}
		report.ByPayment = append(report.ByPayment, p)
	}
	if err := payRows.Err(); err != nil {
		return report, err
	}

	productRows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, MAX(i.product_name), SUM(i.quantity)::bigint, SUM(i.subtotal_cents)::bigint
		FROM sale_items i
		JOIN sales s ON s.id = i.sale_id
		WHERE s.store_id = $1
			AND s.created_at >= $2
			AND s.created_at < $3
			AND s.status = $4
		GROUP BY i.product_id
		ORDER BY SUM(i.quantity) DESC, i.product_id
		LIMIT $5
	`, storeID, from, to, domain.SaleStatusCompleted, topProducts)
	if err != nil {
		return report, err
	}
	defer productRows.Close()
	for productRows.Next() {
		var p domain.DailyReportProduct
		if err := productRows.Scan(&p.ProductID, &p.ProductName, &p.Quantity, &p.SubtotalCents); err != nil {
			return report, err
		}
		report.TopProducts = append(report.TopProducts, p)
	}
	return report, productRows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return hasPgCode(err, "23505")
}

func isForeignKeyViolation(err error) bool {
	return hasPgCode(err, "23503")
}

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}

// Ensure Store satisfies the repository contract.
var _ store.Repository = (*Store)(nil)
