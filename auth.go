package tangguh

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// AuthState is the token manager's session state.
type AuthState int

const (
	AuthStateUnauthenticated AuthState = iota
	AuthStateAuthenticated
	AuthStateRefreshing
)

func (s AuthState) String() string {
	switch s {
	case AuthStateAuthenticated:
		return "authenticated"
	case AuthStateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// refreshSkew refreshes tokens slightly before their recorded expiry so a
// token does not lapse mid-dispatch.
const refreshSkew = 10 * time.Second

// TokenManager owns the auth session: it is the single writer of the token,
// attaches credentials to outgoing requests, and coalesces concurrent refresh
// attempts into one in-flight operation so N callers hitting a 401 trigger
// exactly one refresh.
type TokenManager struct {
	authenticator Authenticator
	store         CredentialStore
	clock         Clock

	mu    sync.Mutex
	token Token
	state AuthState
	// epoch increments on logout; a refresh that completes against a stale
	// epoch has its result discarded.
	epoch uint64

	flight singleflight.Group
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithCredentialStore persists the session through store.
func WithCredentialStore(store CredentialStore) TokenManagerOption {
	return func(m *TokenManager) { m.store = store }
}

// WithTokenClock injects the clock used for expiry checks.
func WithTokenClock(clock Clock) TokenManagerOption {
	return func(m *TokenManager) { m.clock = clock }
}

// NewTokenManager creates a manager around the given authenticator. When a
// credential store is configured and holds a token, the session starts
// authenticated.
func NewTokenManager(authenticator Authenticator, opts ...TokenManagerOption) *TokenManager {
	m := &TokenManager{
		authenticator: authenticator,
		clock:         SystemClock(),
		state:         AuthStateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		if tok, ok, err := m.store.Load(); err == nil && ok {
			m.token = tok
			m.state = AuthStateAuthenticated
		}
	}
	return m
}

// Login exchanges credentials for a token and stores it.
func (m *TokenManager) Login(ctx context.Context, creds Credentials) (Token, error) {
	tok, err := m.authenticator.Login(ctx, creds)
	if err != nil {
		return Token{}, err
	}

	m.mu.Lock()
	m.token = tok
	m.state = AuthStateAuthenticated
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Save(tok)
	}
	return tok, nil
}

// Logout clears the session synchronously. A refresh already in flight may
// still complete, but its result is discarded.
func (m *TokenManager) Logout() {
	m.mu.Lock()
	m.token = Token{}
	m.state = AuthStateUnauthenticated
	m.epoch++
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.Clear()
	}
}

// Attach adds the session credential to req. Returns ErrNotAuthenticated when
// no session exists; a token past its known expiry is refreshed first.
func (m *TokenManager) Attach(ctx context.Context, req *http.Request) error {
	m.mu.Lock()
	tok := m.token
	state := m.state
	m.mu.Unlock()

	if state == AuthStateUnauthenticated || tok.Value == "" {
		return ErrNotAuthenticated
	}
	if m.expiringSoon(tok) {
		refreshed, err := m.refresh(ctx)
		if err != nil {
			return err
		}
		tok = refreshed
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	return nil
}

// OnUnauthorized coordinates the shared refresh after a 401. Concurrent
// callers join the same in-flight refresh and receive the identical outcome.
func (m *TokenManager) OnUnauthorized(ctx context.Context) (Token, error) {
	m.mu.Lock()
	if m.state == AuthStateUnauthenticated {
		m.mu.Unlock()
		return Token{}, ErrNotAuthenticated
	}
	m.mu.Unlock()
	return m.refresh(ctx)
}

// State reports the current session state.
func (m *TokenManager) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentToken returns the session token, if any.
func (m *TokenManager) CurrentToken() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token.Value != ""
}

func (m *TokenManager) refresh(ctx context.Context) (Token, error) {
	m.mu.Lock()
	epoch := m.epoch
	current := m.token
	m.mu.Unlock()

	v, err, _ := m.flight.Do("refresh", func() (any, error) {
		m.mu.Lock()
		m.state = AuthStateRefreshing
		m.mu.Unlock()

		// Detached from the triggering caller: one caller's cancellation
		// must not fail the refresh for everyone who joined it.
		tok, err := m.authenticator.Refresh(context.WithoutCancel(ctx), current)

		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			m.token = Token{}
			m.state = AuthStateUnauthenticated
			if m.store != nil {
				_ = m.store.Clear()
			}
			return Token{}, err
		}
		if m.epoch != epoch {
			// Logged out while refreshing: the result is discarded.
			return Token{}, ErrNotAuthenticated
		}
		m.token = tok
		m.state = AuthStateAuthenticated
		if m.store != nil {
			_ = m.store.Save(tok)
		}
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// expiringSoon reports whether the token's known expiry is within the skew
// window. Tokens without a readable expiry never trigger proactive refresh.
func (m *TokenManager) expiringSoon(tok Token) bool {
	exp := tok.ExpiresAt
	if exp.IsZero() {
		exp = jwtExpiry(tok.Value)
	}
	if exp.IsZero() {
		return false
	}
	return !m.clock.Now().Before(exp.Add(-refreshSkew))
}

// jwtExpiry reads the exp claim from a JWT-shaped token without verifying the
// signature; verification is the server's job, this side only needs the
// expiry hint.
func jwtExpiry(raw string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
