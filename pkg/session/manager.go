package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/users"
)

// Default lockout settings
const (
	DefaultMaxLoginAttempts = 5
	DefaultLockoutDuration  = 15 * time.Minute
	DefaultKeyPrefix        = "userdesk:"
)

// Authenticator is the backend side of login and password changes
type Authenticator interface {
	Login(ctx context.Context, creds users.Credentials) (*users.LoginResult, error)
	ChangePassword(ctx context.Context, change users.PasswordChange) error
}

// Options configures a Manager
type Options struct {
	Store            Store
	Auth             Authenticator
	KeyPrefix        string
	MaxLoginAttempts int
	LockoutDuration  time.Duration
	Policy           users.PasswordPolicy
	Logger           interfaces.Logger
	Metrics          interfaces.Metrics
}

// Manager owns the signed-in session. It satisfies users.TokenSource so
// the REST client can read the token from it.
type Manager struct {
	store       Store
	auth        Authenticator
	prefix      string
	maxAttempts int
	lockout     time.Duration
	policy      users.PasswordPolicy
	logger      interfaces.Logger
	metrics     interfaces.Metrics
	now         func() time.Time
}

// NewManager creates a Manager. A nil store means a MemoryStore.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.MaxLoginAttempts <= 0 {
		opts.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = DefaultLockoutDuration
	}
	if opts.Policy == (users.PasswordPolicy{}) {
		opts.Policy = users.DefaultPasswordPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpMetrics()
	}
	return &Manager{
		store:       opts.Store,
		auth:        opts.Auth,
		prefix:      opts.KeyPrefix,
		maxAttempts: opts.MaxLoginAttempts,
		lockout:     opts.LockoutDuration,
		policy:      opts.Policy,
		logger:      opts.Logger.WithFields(map[string]interface{}{"component": "session"}),
		metrics:     opts.Metrics,
		now:         time.Now,
	}
}

func (m *Manager) key(name string) string { return m.prefix + name }

func (m *Manager) sessionKeys() []string {
	return []string{m.key("token"), m.key("user"), m.key("session_id")}
}

func (m *Manager) failuresKey(username string) string {
	return m.key("login:" + strings.ToLower(username) + ":failures")
}

func (m *Manager) lockedKey(username string) string {
	return m.key("login:" + strings.ToLower(username) + ":locked_until")
}

// Claims parses token without verifying its signature. The backend
// verifies; the console only reads expiry and role hints.
func Claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.NewInvalidTokenError()
	}
	return claims, nil
}

func (m *Manager) expired(claims jwt.MapClaims) bool {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Before(exp.Time)
}

// Token returns the stored token. No session gives an empty token and no
// error. A malformed or expired token is cleared together with the rest
// of the session.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, err := m.store.Get(ctx, m.key("token"))
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	claims, err := Claims(token)
	if err != nil {
		m.logger.Warn("clearing malformed session token")
		m.clear(ctx)
		return "", err
	}
	if m.expired(claims) {
		m.logger.Info("session token expired")
		m.metrics.Counter("session_expired_total", 1, nil)
		m.clear(ctx)
		return "", errors.NewTokenExpiredError()
	}
	return token, nil
}

// SetSession stores token and user. Both expire with the token.
func (m *Manager) SetSession(ctx context.Context, token string, user *users.User) error {
	claims, err := Claims(token)
	if err != nil {
		return err
	}
	if m.expired(claims) {
		return errors.NewTokenExpiredError()
	}
	var ttl time.Duration
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		ttl = exp.Sub(m.now())
	}

	data, err := json.Marshal(user)
	if err != nil {
		return errors.NewInternalErrorWithCause("failed to encode user", err)
	}
	if err := m.store.Set(ctx, m.key("token"), token, ttl); err != nil {
		return err
	}
	if err := m.store.Set(ctx, m.key("user"), string(data), ttl); err != nil {
		return err
	}
	return m.store.Set(ctx, m.key("session_id"), NewSessionID(), ttl)
}

// CurrentUser returns the signed-in user, or nil without a session.
// Corrupt stored data is cleared.
func (m *Manager) CurrentUser(ctx context.Context) (*users.User, error) {
	token, err := m.Token(ctx)
	if err != nil || token == "" {
		return nil, err
	}
	data, err := m.store.Get(ctx, m.key("user"))
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user users.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		m.logger.Warn("clearing corrupt session user", map[string]interface{}{"error": err.Error()})
		m.clear(ctx)
		return nil, nil
	}
	return &user, nil
}

// SessionID returns the id of the current session, or "" without one
func (m *Manager) SessionID(ctx context.Context) string {
	id, err := m.store.Get(ctx, m.key("session_id"))
	if err != nil {
		return ""
	}
	return id
}

// Login authenticates against the backend. Every credential failure
// reports the same message. After MaxLoginAttempts failures within the
// lockout window further attempts for that username are refused locally.
func (m *Manager) Login(ctx context.Context, username, password string) (*users.User, error) {
	if m.auth == nil {
		return nil, errors.NewInternalError("no authenticator configured")
	}
	if until, err := m.store.Get(ctx, m.lockedKey(username)); err == nil {
		m.metrics.Counter("session_logins_total", 1, map[string]string{"outcome": "locked"})
		return nil, errors.NewLockedOutError(until)
	}

	result, err := m.auth.Login(ctx, users.Credentials{Username: username, Password: password})
	if err != nil {
		if !errors.IsCode(err, errors.ErrCodeUnauthorized) {
			m.metrics.Counter("session_logins_total", 1, map[string]string{"outcome": "error"})
			return nil, err
		}
		m.metrics.Counter("session_logins_total", 1, map[string]string{"outcome": "failed"})
		return nil, m.recordFailure(ctx, username)
	}

	if err := m.store.Delete(ctx, m.failuresKey(username)); err != nil {
		m.logger.Warn("failed to reset login failures", map[string]interface{}{"error": err.Error()})
	}
	if err := m.SetSession(ctx, result.Token, &result.User); err != nil {
		return nil, err
	}
	m.metrics.Counter("session_logins_total", 1, map[string]string{"outcome": "ok"})
	m.logger.Info("signed in", map[string]interface{}{"user_id": string(result.User.ID)})
	return &result.User, nil
}

func (m *Manager) recordFailure(ctx context.Context, username string) error {
	n, err := m.store.Incr(ctx, m.failuresKey(username), m.lockout)
	if err != nil {
		m.logger.Error("failed to record login failure", err)
	} else if n >= int64(m.maxAttempts) {
		until := m.now().Add(m.lockout).UTC().Format(time.RFC3339)
		if err := m.store.Set(ctx, m.lockedKey(username), until, m.lockout); err != nil {
			m.logger.Error("failed to lock out user", err)
		}
		if err := m.store.Delete(ctx, m.failuresKey(username)); err != nil {
			m.logger.Error("failed to reset login failures", err)
		}
		m.logger.Warn("login locked out", map[string]interface{}{"attempts": n, "until": until})
		return errors.NewLockedOutError(until)
	}
	return errors.NewUnauthorizedError(users.InvalidCredentialsMessage)
}

// Logout clears every session key
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.Delete(ctx, m.sessionKeys()...)
}

func (m *Manager) clear(ctx context.Context) {
	if err := m.Logout(ctx); err != nil {
		m.logger.Error("failed to clear session", err)
	}
}

// HasPermission reports whether the signed-in user holds permission.
// Names compare case-insensitively.
func (m *Manager) HasPermission(ctx context.Context, permission string) bool {
	user, err := m.CurrentUser(ctx)
	if err != nil || user == nil {
		return false
	}
	for _, p := range user.Permissions {
		if strings.EqualFold(p, permission) {
			return true
		}
	}
	return false
}

// IsAdmin reads the role from the token claims rather than the stored
// user record
func (m *Manager) IsAdmin(ctx context.Context) bool {
	token, err := m.Token(ctx)
	if err != nil || token == "" {
		return false
	}
	claims, err := Claims(token)
	if err != nil {
		return false
	}
	role, _ := claims["role"].(string)
	return strings.EqualFold(role, "admin")
}

// ChangePassword checks newPassword against the policy before asking the
// backend to change it
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if m.auth == nil {
		return errors.NewInternalError("no authenticator configured")
	}
	if oldPassword == newPassword {
		return errors.NewValidationError("new password must differ from the old one")
	}
	if err := m.policy.Check(newPassword); err != nil {
		return err
	}
	return m.auth.ChangePassword(ctx, users.PasswordChange{OldPassword: oldPassword, NewPassword: newPassword})
}

// NewSessionID returns a random session id
func NewSessionID() string {
	return uuid.NewString()
}
