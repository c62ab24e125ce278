package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/store"
	"refillpos/internal/xid"
)

const defaultInactiveDays = 30

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	if includeInactive {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
	}
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Unit = strings.TrimSpace(req.Unit)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	priceCents, err := money.Cents(req.Price)
	if err != nil || priceCents < 1 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         xid.New("prd"),
		SKU:        req.SKU,
		Name:       req.Name,
		Category:   defaultString(req.Category, "general"),
		Unit:       defaultString(req.Unit, "pcs"),
		PriceCents: priceCents,
		Active:     true,
		CreatedAt:  s.now(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		actor, _ := ActorFromContext(ctx)
		if _, err := s.repo.AdjustStock(ctx, domain.StockMovement{
			StoreID:   req.StoreID,
			ProductID: created.ID,
			Delta:     req.InitialStock,
			Reason:    "initial_stock",
			ActedBy:   actor.Username,
		}); err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,name=%s,price=%d,stock=%d", created.SKU, created.Name, created.PriceCents, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = defaultString(strings.TrimSpace(*req.Category), "general")
	}
	if req.Unit != nil {
		updated.Unit = defaultString(strings.TrimSpace(*req.Unit), "pcs")
	}
	if req.Price != nil {
		cents, err := money.Cents(*req.Price)
		if err != nil || cents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = cents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.PriceCents != saved.PriceCents {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:            xid.New("ph"),
			ProductID:     saved.ID,
			OldPriceCents: existing.PriceCents,
			NewPriceCents: saved.PriceCents,
			ChangedBy:     actor.Username,
			ChangedAt:     s.now(),
		}); err != nil {
			s.logger.Warn("price history not recorded", zap.String("product_id", saved.ID), zap.Error(err))
		}
	}

	s.logAudit(ctx, s.defaultStoreID, "product_update", "product", saved.ID,
		fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, false)
}

// CreateCustomer is open to cashiers so a new customer can be registered at
// the counter.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cus"),
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		Notes:     strings.TrimSpace(req.Notes),
		Active:    true,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "customer_create", "customer", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

// ListInactiveCustomers returns active customers with no purchase in the last
// days days (30 when days is not positive).
func (s *Service) ListInactiveCustomers(ctx context.Context, days int) ([]domain.Customer, error) {
	if days < 1 {
		days = defaultInactiveDays
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.repo.ListInactiveCustomers(ctx, since)
}

func (s *Service) ListInventory(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	return s.repo.ListStock(ctx, defaultString(storeID, s.defaultStoreID))
}

// AdjustInventory applies either a signed delta or a counted quantity. A count
// equal to the current stock records nothing.
func (s *Service) AdjustInventory(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockAdjustmentResponse, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	req.StoreID = defaultString(req.StoreID, s.defaultStoreID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.ProductID == "" || req.Reason == "" || (req.Delta == nil) == (req.CountedQty == nil) {
		return domain.StockAdjustmentResponse{}, store.ErrInvalidInput
	}

	current, err := s.repo.GetStock(ctx, req.StoreID, req.ProductID)
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}

	delta := 0
	if req.Delta != nil {
		delta = *req.Delta
	} else {
		if *req.CountedQty < 0 {
			return domain.StockAdjustmentResponse{}, store.ErrInvalidInput
		}
		delta = *req.CountedQty - current
	}

	resp := domain.StockAdjustmentResponse{ProductID: req.ProductID, PreviousQty: current, NewQty: current, Delta: delta}
	if delta == 0 {
		if req.Delta != nil {
			return domain.StockAdjustmentResponse{}, store.ErrInvalidInput
		}
		return resp, nil
	}

	next, err := s.repo.AdjustStock(ctx, domain.StockMovement{
		StoreID:   req.StoreID,
		ProductID: req.ProductID,
		Delta:     delta,
		Reason:    req.Reason,
		ActedBy:   actor.Username,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.StockAdjustmentResponse{}, err
	}
	resp.NewQty = next

	s.logAudit(ctx, req.StoreID, "inventory_adjust", "product", req.ProductID,
		fmt.Sprintf("delta=%d,reason=%s", delta, req.Reason))
	return resp, nil
}
