package cache

import (
	"context"

	"refillpos/internal/cart"
)

// CartCache keeps each terminal's cart between requests and across restarts.
type CartCache interface {
	Get(ctx context.Context, terminalID string) (*cart.Snapshot, bool, error)
	Set(ctx context.Context, terminalID string, snapshot cart.Snapshot) error
	Delete(ctx context.Context, terminalID string) error
}

type NoopCartCache struct{}

func (NoopCartCache) Get(_ context.Context, _ string) (*cart.Snapshot, bool, error) {
	return nil, false, nil
}

func (NoopCartCache) Set(_ context.Context, _ string, _ cart.Snapshot) error {
	return nil
}

func (NoopCartCache) Delete(_ context.Context, _ string) error {
	return nil
}
