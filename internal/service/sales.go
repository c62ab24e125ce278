package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"refillpos/internal/cart"
	"refillpos/internal/checkout"
	"refillpos/internal/domain"
	"refillpos/internal/money"
	"refillpos/internal/store"
)

const receiptTitle = "Refill POS"

type FinalizeRequest struct {
	PaymentMethod  string           `json:"payment_method"`
	AmountReceived *decimal.Decimal `json:"amount_received,omitempty"`
	// CustomerID replaces the customer selected on the cart when set.
	CustomerID  string                        `json:"customer_id,omitempty"`
	NewCustomer *domain.CustomerCreateRequest `json:"new_customer,omitempty"`
}

type FinalizeResponse struct {
	Sale    *checkout.SaleResult `json:"sale"`
	Receipt string               `json:"receipt"`
	Notices []checkout.Notice    `json:"notices"`
}

// FinalizeSale turns the terminal's cart into a sale. Payment is validated
// before an inline customer is created, so a rejected checkout leaves nothing
// behind.
func (s *Service) FinalizeSale(ctx context.Context, terminalID string, req FinalizeRequest) (FinalizeResponse, error) {
	actor, _ := ActorFromContext(ctx)

	creq := checkout.Request{
		StoreID:       s.defaultStoreID,
		TerminalID:    terminalID,
		PaymentMethod: req.PaymentMethod,
		CreatedBy:     defaultString(actor.Username, "system"),
	}
	if req.AmountReceived != nil {
		if req.AmountReceived.IsNegative() {
			return FinalizeResponse{}, fmt.Errorf("%w: amount received must not be negative", checkout.ErrInvalidPayment)
		}
		cents, err := money.Cents(*req.AmountReceived)
		if err != nil {
			return FinalizeResponse{}, fmt.Errorf("%w: amount received is out of range", checkout.ErrInvalidPayment)
		}
		creq.AmountReceived = &cents
	}
	if req.NewCustomer != nil && strings.TrimSpace(req.CustomerID) != "" {
		return FinalizeResponse{}, fmt.Errorf("%w: customer_id and new_customer are exclusive", store.ErrInvalidInput)
	}

	var resp FinalizeResponse
	err := s.withLedger(ctx, terminalID, func(l *cart.Ledger) error {
		if _, err := s.assembler.BuildDraft(l, creq); err != nil {
			// Finalize reports the same error and notifies about it.
			_, err = s.assembler.Finalize(ctx, l, creq)
			return err
		}

		ref, err := s.checkoutCustomer(ctx, req)
		if err != nil {
			return err
		}
		creq.Customer = ref

		result, err := s.assembler.Finalize(ctx, l, creq)
		if err != nil {
			var partial *checkout.PartialSaleError
			if errors.As(err, &partial) {
				s.logAudit(ctx, s.defaultStoreID, "sale_partial", "sale", partial.SaleID,
					fmt.Sprintf("terminal=%s,error=%v", terminalID, partial.Err))
			}
			return err
		}

		if err := s.carts.Delete(ctx, terminalID); err != nil {
			s.logger.Warn("cart snapshot not cleared after sale", zap.String("terminal_id", terminalID), zap.Error(err))
		}

		resp = FinalizeResponse{
			Sale:    result,
			Receipt: checkout.Receipt(result, receiptTitle),
			Notices: result.Notices(),
		}
		s.logAudit(ctx, s.defaultStoreID, "sale_create", "sale", result.SaleID,
			fmt.Sprintf("terminal=%s,total=%d,method=%s,warnings=%d", terminalID, result.TotalCents, result.PaymentMethod, len(result.Warnings)))
		return nil
	})
	if err != nil {
		return FinalizeResponse{}, err
	}
	return resp, nil
}

// checkoutCustomer resolves the customer override of a finalize request. A
// nil ref keeps whatever the cart has selected.
func (s *Service) checkoutCustomer(ctx context.Context, req FinalizeRequest) (*domain.CustomerRef, error) {
	if req.NewCustomer != nil {
		created, err := s.CreateCustomer(ctx, *req.NewCustomer)
		if err != nil {
			return nil, err
		}
		return &domain.CustomerRef{ID: created.ID, Name: created.Name}, nil
	}

	id := strings.TrimSpace(req.CustomerID)
	if id == "" {
		return nil, nil
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.CustomerRef{ID: customer.ID, Name: customer.Name}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, storeID string, date string, limit int) ([]domain.Sale, error) {
	from, to, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListSales(ctx, defaultString(storeID, s.defaultStoreID), from, to, limit)
}

func (s *Service) DailyReport(ctx context.Context, storeID string, date string) (domain.DailyReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailyReport{}, err
	}
	storeID = defaultString(storeID, s.defaultStoreID)

	from, to, err := s.dayRange(date)
	if err != nil {
		return domain.DailyReport{}, err
	}

	report, err := s.repo.GetDailyReport(ctx, storeID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.StoreID = storeID
	report.Date = from.Format("2006-01-02")
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, storeID string, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	from, to, err := s.dayRange(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, defaultString(storeID, s.defaultStoreID), from, to, limit)
}
