package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"refillpos/internal/cache"
	"refillpos/internal/checkout"
	"refillpos/internal/domain"
	"refillpos/internal/store"
	"refillpos/internal/xid"
)

var (
	ErrForbidden        = errors.New("admin role required")
	ErrApprovalRequired = errors.New("manager approval required")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Config struct {
	StoreID          string
	CheckoutTimeout  time.Duration
	StockConcurrency int
	// Notifier receives every checkout notice in addition to the HTTP response.
	Notifier checkout.Notifier
}

type Service struct {
	repo           store.Repository
	carts          cache.CartCache
	assembler      *checkout.Assembler
	logger         *zap.Logger
	defaultStoreID string
	now            func() time.Time

	mu        sync.Mutex
	terminals map[string]*terminal
}

func New(repo store.Repository, carts cache.CartCache, logger *zap.Logger, cfg Config) *Service {
	if cfg.StoreID == "" {
		cfg.StoreID = "main-store"
	}
	if carts == nil {
		carts = cache.NoopCartCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithStoreID(cfg.StoreID),
		checkout.WithTimeout(cfg.CheckoutTimeout),
		checkout.WithConcurrency(cfg.StockConcurrency),
	}
	if cfg.Notifier != nil {
		opts = append(opts, checkout.WithNotifier(cfg.Notifier))
	}

	return &Service{
		repo:           repo,
		carts:          carts,
		assembler:      checkout.New(repo, opts...),
		logger:         logger.With(zap.String("component", "service")),
		defaultStoreID: cfg.StoreID,
		now:            func() time.Time { return time.Now().UTC() },
		terminals:      make(map[string]*terminal),
	}
}

func (s *Service) StoreID() string {
	return s.defaultStoreID
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.Warn("audit log not written",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

// dayRange parses a YYYY-MM-DD date (today when empty) into a UTC day.
func (s *Service) dayRange(date string) (time.Time, time.Time, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
		if err != nil {
			return time.Time{}, time.Time{}, store.ErrInvalidInput
		}
		day = parsed.UTC()
	}
	return day, day.Add(24 * time.Hour), nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
