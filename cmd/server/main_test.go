package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"refillpos/internal/cache"
	"refillpos/internal/cart"
	"refillpos/internal/config"
	"refillpos/internal/domain"
	"refillpos/internal/session"
	"refillpos/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short", ManagerPIN: "739154"}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "123456"}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "12345"}))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ManagerPIN: "739154"})
	assert.NoError(t, err)
}

func TestValidatePINStrength(t *testing.T) {
	for _, pin := range []string{"777777", "234567", "987654", "159753"} {
		assert.Error(t, validatePINStrength(pin), pin)
	}
	assert.NoError(t, validatePINStrength("482913"))
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.IsType(t, &memory.Store{}, repo)
}

func TestRedisBackedComponents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	carts, sessions, broker := redisBacked(client, config.Config{CartTTLMinutes: 5}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, carts.Set(ctx, "T-01", cart.Snapshot{Customer: &domain.CustomerRef{ID: "cus-1", Name: "Bu Sari"}}))
	_, found, err := carts.Get(ctx, "T-01")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, sessions.Save(ctx, session.Session{ID: "sess-1", Username: "kasir", ExpiresAt: time.Now().Add(time.Hour)}))
	loaded, err := sessions.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "kasir", loaded.Username)

	assert.NotNil(t, broker)
}
