package token_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/court-scheduler/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 9, 16, 12, 0, 0, 0, time.UTC)

// mintJWT signs a throwaway HS256 token with the given expiry. The manager
// never verifies signatures, only decodes the exp claim.
func mintJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return s
}

type fakeStore struct {
	mu     sync.Mutex
	creds  map[string]token.Credential
	getErr error
	putErr error
	puts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]token.Credential{}}
}

func (s *fakeStore) Get(ctx context.Context, userID string) (token.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return token.Credential{}, s.getErr
	}
	c, ok := s.creds[userID]
	if !ok {
		return token.Credential{}, token.ErrNotFound
	}
	return c, nil
}

func (s *fakeStore) Put(ctx context.Context, userID string, c token.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.creds[userID] = c
	return nil
}

type fakeAuth struct {
	refreshCalls  atomic.Int64
	passwordCalls atomic.Int64

	refreshCred  token.Credential
	refreshErr   error
	passwordCred token.Credential
	passwordErr  error
}

func (a *fakeAuth) RefreshGrant(ctx context.Context, refreshToken string) (token.Credential, error) {
	a.refreshCalls.Add(1)
	if a.refreshErr != nil {
		return token.Credential{}, a.refreshErr
	}
	return a.refreshCred, nil
}

func (a *fakeAuth) PasswordGrant(ctx context.Context, username, password string) (token.Credential, error) {
	a.passwordCalls.Add(1)
	if a.passwordErr != nil {
		return token.Credential{}, a.passwordErr
	}
	return a.passwordCred, nil
}

func newTestManager(store *fakeStore, auth *fakeAuth) *token.Manager {
	return token.NewManager("alice", "alice@example.com", "secret", store, auth, zerolog.Nop(),
		token.WithNow(func() time.Time { return testNow }))
}

func TestGetValidCredentialReusesStoredToken(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}
	auth := &fakeAuth{}

	cred, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, store.creds["alice"].AccessToken, cred.AccessToken)
	require.Zero(t, auth.refreshCalls.Load())
	require.Zero(t, auth.passwordCalls.Load())
}

func TestGetValidCredentialRefreshesInsideBuffer(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(2*time.Minute)), // valid, but inside the 5-minute buffer
		RefreshToken: "rt-old",
	}
	auth := &fakeAuth{refreshCred: token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(time.Hour)),
		RefreshToken: "rt-new",
		ExpiresIn:    3600,
	}}

	cred, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.refreshCalls.Load())
	require.Equal(t, "rt-new", cred.RefreshToken)

	// Persisted before being returned, whole record, with the update time set.
	require.Equal(t, 1, store.puts)
	require.Equal(t, cred, store.creds["alice"])
	require.Equal(t, testNow.UTC(), cred.UpdatedAt)
}

func TestGetValidCredentialSingleRefreshUnderConcurrency(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(-time.Hour)),
		RefreshToken: "rt-old",
	}
	auth := &fakeAuth{refreshCred: token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(time.Hour)),
		RefreshToken: "rt-new",
	}}
	m := newTestManager(store, auth)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := m.GetValidCredential(context.Background())
			require.NoError(t, err)
			require.NotEmpty(t, cred.AccessToken)
		}()
	}
	wg.Wait()

	// The first caller refreshes and persists; everyone queued behind it
	// re-reads the store and reuses the fresh record.
	require.Equal(t, int64(1), auth.refreshCalls.Load())
	require.Zero(t, auth.passwordCalls.Load())
}

func TestGetValidCredentialFallsBackToPasswordGrant(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(-time.Minute)),
		RefreshToken: "rt-stale",
	}
	auth := &fakeAuth{
		refreshErr:   errors.New("invalid_grant"),
		passwordCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour)), RefreshToken: "rt-new"},
	}

	cred, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.refreshCalls.Load())
	require.Equal(t, int64(1), auth.passwordCalls.Load())
	require.Equal(t, "rt-new", cred.RefreshToken)
}

func TestGetValidCredentialNoRecordUsesPasswordGrant(t *testing.T) {
	store := newFakeStore()
	auth := &fakeAuth{passwordCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}}

	_, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Zero(t, auth.refreshCalls.Load())
	require.Equal(t, int64(1), auth.passwordCalls.Load())
}

func TestGetValidCredentialBothGrantsFail(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(-time.Minute)),
		RefreshToken: "rt",
	}
	auth := &fakeAuth{
		refreshErr:  errors.New("invalid_grant"),
		passwordErr: errors.New("status 401"),
	}

	_, err := newTestManager(store, auth).GetValidCredential(context.Background())
	var ae *token.AuthError
	require.ErrorAs(t, err, &ae)
	require.ErrorContains(t, err, "password grant")
}

func TestGetValidCredentialUnreadableStoreStillGrants(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	auth := &fakeAuth{passwordCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}}

	_, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.passwordCalls.Load())
}

func TestGetValidCredentialPersistFailureStillReturnsToken(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("disk full")
	auth := &fakeAuth{passwordCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}}

	cred, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cred.AccessToken)
}

func TestGetValidCredentialUndecodableTokenTreatedAsExpired(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{AccessToken: "not-a-jwt", RefreshToken: "rt"}
	auth := &fakeAuth{refreshCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}}

	_, err := newTestManager(store, auth).GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.refreshCalls.Load())
}

func TestForceRefreshBypassesExpiryCheck(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{
		AccessToken:  mintJWT(t, testNow.Add(time.Hour)), // still valid
		RefreshToken: "rt",
	}
	auth := &fakeAuth{refreshCred: token.Credential{AccessToken: mintJWT(t, testNow.Add(2 * time.Hour))}}

	cred, err := newTestManager(store, auth).ForceRefresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), auth.refreshCalls.Load())
	require.Equal(t, cred, store.creds["alice"])
}

func TestForceRefreshRequiresStoredRefreshToken(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{AccessToken: mintJWT(t, testNow.Add(time.Hour))}

	_, err := newTestManager(store, &fakeAuth{}).ForceRefresh(context.Background())
	var ae *token.AuthError
	require.ErrorAs(t, err, &ae)
}

func TestWithExpiryBuffer(t *testing.T) {
	store := newFakeStore()
	store.creds["alice"] = token.Credential{AccessToken: mintJWT(t, testNow.Add(2 * time.Minute))}
	auth := &fakeAuth{}

	m := token.NewManager("alice", "alice@example.com", "secret", store, auth, zerolog.Nop(),
		token.WithNow(func() time.Time { return testNow }),
		token.WithExpiryBuffer(time.Minute))

	// With a one-minute buffer a token expiring in two minutes is still good.
	_, err := m.GetValidCredential(context.Background())
	require.NoError(t, err)
	require.Zero(t, auth.refreshCalls.Load())
	require.Zero(t, auth.passwordCalls.Load())
}
