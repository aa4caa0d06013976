// Package token manages the OAuth2 credential lifecycle for one platform
// identity: acquisition via the password grant, expiry-aware reuse, and
// refresh. The stored record is the sole source of truth for that identity's
// auth state.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Credential is the persisted token record for one user identity. It is
// overwritten whole on every grant, never partially.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
	UpdatedAt    time.Time
}

// Store persists one Credential per user identity.
type Store interface {
	// Get returns ErrNotFound when no record exists for the identity.
	Get(ctx context.Context, userID string) (Credential, error)
	// Put atomically overwrites the whole record.
	Put(ctx context.Context, userID string, c Credential) error
}

// AuthClient performs the OAuth2 grants against the provider's token endpoint.
type AuthClient interface {
	PasswordGrant(ctx context.Context, username, password string) (Credential, error)
	RefreshGrant(ctx context.Context, refreshToken string) (Credential, error)
}

var ErrNotFound = errors.New("credential not found")

// AuthError reports that no usable credential could be obtained. It is fatal
// for the booking attempt that hit it, but only for that attempt.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string { return "auth: " + e.Reason.Error() }
func (e *AuthError) Unwrap() error { return e.Reason }

// DefaultExpiryBuffer is how long before the token's exp claim we stop
// trusting it. A token inside the buffer is refreshed even though it is
// technically still valid.
const DefaultExpiryBuffer = 5 * time.Minute

// Manager owns the credential for a single user identity. All methods
// serialize on an internal mutex, so at most one grant is in flight per
// identity; concurrent callers wait and then reuse the refreshed record
// instead of racing their own refresh (which can invalidate refresh tokens on
// some providers).
type Manager struct {
	mu sync.Mutex

	userID   string
	username string
	password string

	store  Store
	auth   AuthClient
	log    zerolog.Logger
	now    func() time.Time
	buffer time.Duration
}

type ManagerOption func(*Manager)

// WithNow overrides the clock (for tests).
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func WithExpiryBuffer(d time.Duration) ManagerOption {
	return func(m *Manager) { m.buffer = d }
}

func NewManager(userID, username, password string, store Store, auth AuthClient, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		userID:   userID,
		username: username,
		password: password,
		store:    store,
		auth:     auth,
		log:      log.With().Str("component", "token").Str("user", userID).Logger(),
		now:      time.Now,
		buffer:   DefaultExpiryBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidCredential returns a credential usable right now. A stored access
// token whose expiry is more than the buffer away is returned unchanged;
// otherwise the manager refreshes, falling back to the password grant when no
// refresh token exists or the refresh fails.
func (m *Manager) GetValidCredential(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx, m.userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// Treat an unreadable store like a missing record: a fresh grant can
		// still succeed, and persist will complain loudly if the store stays
		// broken.
		m.log.Warn().Err(err).Msg("could not read stored credential")
		cred = Credential{}
	}

	if m.usable(cred.AccessToken) {
		return cred, nil
	}

	if cred.RefreshToken != "" {
		fresh, err := m.auth.RefreshGrant(ctx, cred.RefreshToken)
		if err == nil {
			m.persist(ctx, &fresh)
			return fresh, nil
		}
		m.log.Warn().Err(err).Msg("token refresh failed, falling back to password grant")
	}

	if m.username == "" || m.password == "" {
		return Credential{}, &AuthError{Reason: errors.New("no refresh token and no username/password configured")}
	}
	fresh, err := m.auth.PasswordGrant(ctx, m.username, m.password)
	if err != nil {
		return Credential{}, &AuthError{Reason: fmt.Errorf("password grant: %w", err)}
	}
	m.persist(ctx, &fresh)
	return fresh, nil
}

// ForceRefresh refreshes unconditionally, bypassing the expiry check. Used for
// manual recovery via the CLI.
func (m *Manager) ForceRefresh(ctx context.Context) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.store.Get(ctx, m.userID)
	if err != nil {
		return Credential{}, &AuthError{Reason: fmt.Errorf("read stored credential: %w", err)}
	}
	if cred.RefreshToken == "" {
		return Credential{}, &AuthError{Reason: errors.New("no refresh token stored")}
	}
	fresh, err := m.auth.RefreshGrant(ctx, cred.RefreshToken)
	if err != nil {
		return Credential{}, &AuthError{Reason: fmt.Errorf("refresh grant: %w", err)}
	}
	m.persist(ctx, &fresh)
	return fresh, nil
}

// usable decodes the token's exp claim without verifying the signature. We are
// a client scheduling our own requests, not a verifier; no trust decision
// depends on this read.
func (m *Manager) usable(raw string) bool {
	if raw == "" {
		return false
	}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		m.log.Warn().Err(err).Msg("could not decode stored access token")
		return false
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return m.now().Before(exp.Time.Add(-m.buffer))
}

// persist durably overwrites the record before the credential is returned to
// the caller. A write failure must not lose the token silently: it is logged
// at error level so operators know the stored record is stale.
func (m *Manager) persist(ctx context.Context, c *Credential) {
	c.UpdatedAt = m.now().UTC()
	if err := m.store.Put(ctx, m.userID, *c); err != nil {
		m.log.Error().Err(err).Msg("failed to persist credential; stored record is stale and may need manual re-authentication")
	}
}
