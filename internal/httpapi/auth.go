package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"refillpos/internal/domain"
	"refillpos/internal/session"
	"refillpos/internal/store"
	"refillpos/internal/xid"
)

const userStoreTimeout = 5 * time.Second

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionRevoked     = errors.New("session has ended")
)

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	userStore  UserStore
	sessions   session.Store
	broker     session.Broker
	logger     *zap.Logger
	users      map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager hashes the manager PIN and loads the user store. Sessions and
// broker may be nil, in which case in-memory ones are used.
func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore, sessions session.Store, broker session.Broker, logger *zap.Logger) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	managerPIN = strings.TrimSpace(managerPIN)
	if managerPIN == "" {
		managerPIN = "disabled"
	}
	hashedPIN, err := hashPassword(managerPIN)
	if err == nil {
		managerPIN = hashedPIN
	}
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}
	if broker == nil {
		broker = session.NewMemoryBroker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: managerPIN,
		userStore:  userStore,
		sessions:   sessions,
		broker:     broker,
		logger:     logger.With(zap.String("component", "auth")),
		users:      make(map[string]credential),
	}
	manager.bootstrapUsers(context.Background())
	return manager
}

func (a *AuthManager) Broker() session.Broker {
	return a.broker
}

// Login checks the credentials, opens a persisted session and announces it.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	sess := session.Session{
		ID:        xid.New("sess"),
		Username:  username,
		Role:      cred.role,
		ExpiresAt: time.Now().UTC().Add(a.tokenTTL),
	}
	resp, err := a.issue(ctx, sess)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	a.publish(ctx, session.EventSignedIn, sess)
	return resp, nil
}

// Refresh extends the actor's session and returns a new token for it.
func (a *AuthManager) Refresh(ctx context.Context, actor domain.Actor) (domain.LoginResponse, error) {
	sess, err := a.sessions.Load(ctx, actor.SessionID)
	if err != nil {
		return domain.LoginResponse{}, ErrSessionRevoked
	}
	sess.ExpiresAt = time.Now().UTC().Add(a.tokenTTL)

	resp, err := a.issue(ctx, *sess)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	a.publish(ctx, session.EventRefreshed, *sess)
	return resp, nil
}

// Logout ends the session. Tokens issued for it stop working immediately.
func (a *AuthManager) Logout(ctx context.Context, actor domain.Actor) error {
	if err := a.sessions.Delete(ctx, actor.SessionID); err != nil {
		return err
	}
	a.publish(ctx, session.EventSignedOut, session.Session{ID: actor.SessionID, Username: actor.Username})
	return nil
}

// Authenticate validates the token and checks that its session still exists.
func (a *AuthManager) Authenticate(ctx context.Context, tokenStr string) (domain.Actor, error) {
	actor, err := a.ParseToken(tokenStr)
	if err != nil {
		return domain.Actor{}, err
	}
	if _, err := a.sessions.Load(ctx, actor.SessionID); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			a.logger.Warn("session lookup failed", zap.String("session_id", actor.SessionID), zap.Error(err))
		}
		return domain.Actor{}, ErrSessionRevoked
	}
	return actor, nil
}

// SessionLoader returns a gate loader for the session behind tokenStr. An
// empty or invalid token loads as anonymous.
func (a *AuthManager) SessionLoader(tokenStr string) session.Loader {
	return func(ctx context.Context) (*session.Session, error) {
		if strings.TrimSpace(tokenStr) == "" {
			return nil, nil
		}
		actor, err := a.ParseToken(tokenStr)
		if err != nil {
			return nil, err
		}
		return a.sessions.Load(ctx, actor.SessionID)
	}
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.ID == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{Username: sub, Role: claims.Role, SessionID: claims.ID}, nil
}

func (a *AuthManager) issue(ctx context.Context, sess session.Session) (domain.LoginResponse, error) {
	if err := a.sessions.Save(ctx, sess); err != nil {
		return domain.LoginResponse{}, fmt.Errorf("save session: %w", err)
	}
	token, err := a.sign(sess)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		SessionID:   sess.ID,
		Username:    sess.Username,
		Role:        sess.Role,
		ExpiresAt:   sess.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) sign(sess session.Session) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.Username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(sess.ExpiresAt),
			Issuer:    "refillpos",
		},
		Role: sess.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) publish(ctx context.Context, kind session.EventKind, sess session.Session) {
	err := a.broker.Publish(ctx, session.Event{
		Kind:      kind,
		Username:  sess.Username,
		SessionID: sess.ID,
		At:        time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("session event not published", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || !isPasswordHash(a.managerPIN) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.CashierUser{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidInput)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.CashierUser{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidInput)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.CashierUser{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidInput)
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.CashierUser{}, fmt.Errorf("%w: username %s", store.ErrConflict, username)
	}

	now := time.Now().UTC()
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("failed to hash password")
	}

	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  passwordHash,
			Role:      domain.RoleCashier,
			Active:    true,
			CreatedAt: now,
		})
		if err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credential{
		password: passwordHash,
		role:     domain.RoleCashier,
		active:   true,
		created:  now,
	}
	a.mu.Unlock()

	return domain.CashierUser{
		Username:  username,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: now,
	}, nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.users))
	for username, user := range a.users {
		if user.role != domain.RoleCashier {
			continue
		}
		result = append(result, domain.CashierUser{
			Username:  username,
			Role:      user.role,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers loads user accounts from the user store into the in-memory
// credential cache and upgrades legacy plain-text passwords to bcrypt hashes.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, userStoreTimeout)
	defer cancel()

	users, err := a.userStore.ListUsers(ctx)
	if err != nil {
		a.logger.Warn("user store unavailable, keeping cached credentials", zap.Error(err))
		return
	}
	if len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				if err := a.userStore.UpdateUserPassword(ctx, username, hashed); err != nil {
					a.logger.Warn("legacy password not upgraded", zap.String("username", username), zap.Error(err))
				}
			}
		}
		a.users[username] = credential{
			password: password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
