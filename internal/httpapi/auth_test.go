package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"refillpos/internal/cache"
	"refillpos/internal/domain"
	"refillpos/internal/session"
	"refillpos/internal/store"
	"refillpos/internal/store/memory"
)

func newTestAuth(t *testing.T) (*AuthManager, *memory.Store) {
	t.Helper()
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	return NewAuthManager("auth-test-secret", time.Hour, testManagerPIN, repo, nil, nil, nil), repo
}

func TestLoginIssuesSessionToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Username: " Kasir ", Password: "cashier123"})
	require.NoError(t, err)
	assert.Equal(t, "kasir", resp.Username)
	assert.Equal(t, domain.RoleCashier, resp.Role)

	actor, err := auth.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, actor.SessionID)

	_, err = auth.Login(ctx, domain.LoginRequest{Username: "kasir", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, domain.LoginRequest{Username: "ghost", Password: "cashier123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	auth, _ := newTestAuth(t)

	other := NewAuthManager("another-secret", time.Hour, testManagerPIN, nil, nil, nil, nil)
	foreign, err := other.sign(session.Session{ID: "sess-x", Username: "admin", Role: domain.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	_, err = auth.ParseToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := auth.sign(session.Session{ID: "sess-y", Username: "admin", Role: domain.RoleAdmin, ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	_, err = auth.ParseToken(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSession := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "admin", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleAdmin,
	})
	signed, err := noSession.SignedString([]byte("auth-test-secret"))
	require.NoError(t, err)
	_, err = auth.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogoutRevokesSessionAndPublishes(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, unsubscribe, err := auth.Broker().Subscribe(ctx)
	require.NoError(t, err)
	defer unsubscribe()

	resp, err := auth.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	actor, err := auth.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, actor))
	_, err = auth.Authenticate(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	var kinds []session.EventKind
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			assert.Equal(t, "admin", ev.Username)
			kinds = append(kinds, ev.Kind)
		case <-ctx.Done():
			t.Fatalf("missing session events, got %v", kinds)
		}
	}
	assert.Equal(t, []session.EventKind{session.EventSignedIn, session.EventSignedOut}, kinds)

	_, err = auth.Refresh(ctx, actor)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRefreshExtendsSession(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	resp, err := auth.Login(ctx, domain.LoginRequest{Username: "kasir", Password: "cashier123"})
	require.NoError(t, err)
	actor, err := auth.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)

	refreshed, err := auth.Refresh(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, refreshed.SessionID)

	_, err = auth.Authenticate(ctx, refreshed.AccessToken)
	assert.NoError(t, err)
}

func TestSessionLoader(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	sess, err := auth.SessionLoader("")(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sess)

	_, err = auth.SessionLoader("garbage")(ctx)
	assert.ErrorIs(t, err, ErrInvalidToken)

	resp, err := auth.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	sess, err = auth.SessionLoader(resp.AccessToken)(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", sess.Username)
}

func TestSessionsSurviveRestartThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	ctx := context.Background()

	first := NewAuthManager("shared-secret", time.Hour, testManagerPIN, repo, session.NewRedisStore(client), session.NewRedisBroker(client, nil), nil)
	resp, err := first.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	restarted := NewAuthManager("shared-secret", time.Hour, testManagerPIN, repo, session.NewRedisStore(client), session.NewRedisBroker(client, nil), nil)
	actor, err := restarted.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, restarted.Logout(ctx, actor))
	_, err = first.Authenticate(ctx, resp.AccessToken)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestValidateManagerPIN(t *testing.T) {
	auth, _ := newTestAuth(t)
	assert.True(t, auth.ValidateManagerPIN(testManagerPIN))
	assert.True(t, auth.ValidateManagerPIN(" "+testManagerPIN+" "))
	assert.False(t, auth.ValidateManagerPIN("000000"))
	assert.False(t, auth.ValidateManagerPIN(""))
}

func TestCreateCashierValidation(t *testing.T) {
	auth, repo := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.CreateCashier(ctx, domain.CashierCreateRequest{Username: "abc", Password: "secret1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = auth.CreateCashier(ctx, domain.CashierCreateRequest{Username: "with space", Password: "secret1"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = auth.CreateCashier(ctx, domain.CashierCreateRequest{Username: "dewi", Password: "123"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = auth.CreateCashier(ctx, domain.CashierCreateRequest{Username: "KASIR", Password: "secret1"})
	assert.ErrorIs(t, err, store.ErrConflict)

	user, err := auth.CreateCashier(ctx, domain.CashierCreateRequest{Username: "Dewi", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "dewi", user.Username)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	var stored string
	for _, u := range users {
		if u.Username == "dewi" {
			stored = u.Password
		}
	}
	require.NotEmpty(t, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("secret1")))

	names := make([]string, 0)
	for _, c := range auth.ListCashiers(ctx) {
		names = append(names, c.Username)
	}
	assert.Equal(t, []string{"dewi", "kasir"}, names)
}

func TestBootstrapUpgradesLegacyPasswords(t *testing.T) {
	repo, err := memory.NewSeeded(nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, domain.UserAccount{
		Username: "lama", Password: "plain-pass", Role: domain.RoleCashier, Active: true, CreatedAt: time.Now(),
	}))

	auth := NewAuthManager("secret", time.Hour, testManagerPIN, repo, nil, nil, nil)
	_, err = auth.Login(ctx, domain.LoginRequest{Username: "lama", Password: "plain-pass"})
	require.NoError(t, err)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	for _, u := range users {
		if u.Username == "lama" {
			assert.True(t, isPasswordHash(u.Password))
		}
	}
}
