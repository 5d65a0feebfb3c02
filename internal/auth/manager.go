// Package auth owns the client session: tokens, the cached user profile, and
// the LoggedOut/Authenticated lifecycle. Manager implements api.Credentials,
// so the transport reads and rotates tokens through it.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/events"
	"github.com/tonimelisma/cloudvault/internal/sessionstore"
)

// State is the session lifecycle state.
type State int

// Session states.
const (
	LoggedOut State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Backend is the subset of the API client the manager drives.
type Backend interface {
	Login(ctx context.Context, identifier, password string) (*api.LoginResult, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.Confirmation, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*api.User, error)
}

// refreshResetter is implemented by backends with a refresh coordinator.
type refreshResetter interface {
	ResetRefresh()
}

// Event describes a session change.
type Event struct {
	State  State
	Reason string
}

// Manager holds the session. All methods are safe for concurrent use.
type Manager struct {
	store  sessionstore.Store
	logger *slog.Logger
	events *events.Broadcaster[Event]

	backend Backend

	mu         sync.RWMutex
	state      State
	generation uint64 // bumped by every login, restore, and clear
	access     string
	refresh    string
	user       *api.User
	quotaDelta int64
}

var errNoBackend = errors.New("auth: no backend attached")

// NewManager creates a logged-out manager over store. Call Attach before any
// network operation, then Initialize.
func NewManager(store sessionstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:  store,
		logger: logger,
		events: events.NewBroadcaster[Event](nil),
	}
}

// Attach sets the backend. The transport needs the manager as its
// Credentials, so the two are wired after construction.
func (m *Manager) Attach(b Backend) {
	m.backend = b
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// User returns a copy of the authoritative profile, or nil when logged out.
func (m *Manager) User() *api.User {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != Authenticated {
		return nil
	}

	return m.user.Clone()
}

// Subscribe returns a channel of session events.
func (m *Manager) Subscribe() <-chan Event {
	return m.events.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch <-chan Event) {
	m.events.Unsubscribe(ch)
}

// Initialize restores a persisted session. With a stored token and cached
// profile it revalidates against the server: a 401 clears the session, any
// other failure keeps the stored tokens but leaves this run logged out.
func (m *Manager) Initialize(ctx context.Context) error {
	access, err := sessionstore.GetOptional(ctx, m.store, sessionstore.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("auth: loading session: %w", err)
	}

	refresh, err := sessionstore.GetOptional(ctx, m.store, sessionstore.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("auth: loading session: %w", err)
	}

	cached := m.loadCachedUser(ctx)

	m.mu.Lock()
	m.generation++
	m.access, m.refresh = access, refresh
	m.mu.Unlock()

	if access == "" || cached == nil {
		m.logger.Debug("no persisted session")
		return nil
	}

	if m.backend == nil {
		return errNoBackend
	}

	user, err := m.backend.Me(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			m.logger.Info("persisted session rejected, clearing")
			m.clearLogged(ctx, "session expired")

			return nil
		}

		m.logger.Warn("could not validate persisted session",
			slog.String("error", err.Error()),
		)

		return &AuthError{Op: "session validation", Err: err}
	}

	m.mu.Lock()
	m.state = Authenticated
	m.user = user.Clone()
	m.quotaDelta = 0
	m.mu.Unlock()

	m.saveUser(ctx, user)
	m.events.Publish(Event{State: Authenticated, Reason: "session restored"})

	m.logger.Debug("session restored", slog.String("user_id", user.ID))

	return nil
}

// Login authenticates and persists the new session. On failure the state is
// unchanged.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*api.User, error) {
	if err := validateLogin(identifier, password); err != nil {
		return nil, err
	}

	if m.backend == nil {
		return nil, errNoBackend
	}

	res, err := m.backend.Login(ctx, identifier, password)
	if err != nil {
		return nil, &AuthError{Op: "login", Err: err}
	}

	if res.Token == "" || res.User == nil {
		return nil, &AuthError{Op: "login", Err: errors.New("incomplete login response")}
	}

	m.mu.Lock()
	m.generation++
	m.state = Authenticated
	m.access = res.Token
	m.refresh = res.RefreshToken
	m.user = res.User.Clone()
	m.quotaDelta = 0
	m.mu.Unlock()

	if r, ok := m.backend.(refreshResetter); ok {
		r.ResetRefresh()
	}

	m.events.Publish(Event{State: Authenticated, Reason: "login"})

	m.logger.Info("logged in", slog.String("user_id", res.User.ID))

	if err := m.persistSession(ctx, res.Token, res.RefreshToken, res.User); err != nil {
		return res.User.Clone(), err
	}

	return res.User.Clone(), nil
}

// Register creates an account. It never authenticates.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) (*api.Confirmation, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	if m.backend == nil {
		return nil, errNoBackend
	}

	conf, err := m.backend.Register(ctx, req)
	if err != nil {
		return nil, &AuthError{Op: "registration", Err: err}
	}

	return conf, nil
}

// Logout ends the session. With notifyServer, the server is told first; its
// failure is logged and ignored. Local state is always cleared.
func (m *Manager) Logout(ctx context.Context, notifyServer bool) error {
	if notifyServer && m.backend != nil && m.AccessToken() != "" {
		if err := m.backend.Logout(ctx); err != nil {
			m.logger.Warn("server logout failed, clearing local session",
				slog.String("error", err.Error()),
			)
		}
	}

	return m.clear(ctx, "logout")
}

// RefreshProfile re-fetches the profile. On failure it returns (nil, false)
// and leaves the session untouched.
func (m *Manager) RefreshProfile(ctx context.Context) (*api.User, bool) {
	if m.State() != Authenticated || m.backend == nil {
		return nil, false
	}

	user, err := m.backend.Me(ctx)
	if err != nil {
		m.logger.Warn("profile refresh failed", slog.String("error", err.Error()))
		return nil, false
	}

	m.mu.Lock()
	if m.state != Authenticated {
		// Logged out while the request was in flight.
		m.mu.Unlock()
		return nil, false
	}

	m.user = user.Clone()
	m.quotaDelta = 0
	m.mu.Unlock()

	m.saveUser(ctx, user)

	return user.Clone(), true
}

// AdjustQuotaEstimate shifts the display-only usage estimate by delta bytes.
// The estimate is never persisted and is discarded by the next profile fetch.
func (m *Manager) AdjustQuotaEstimate(delta int64) {
	m.mu.Lock()
	if m.state == Authenticated {
		m.quotaDelta += delta
	}
	m.mu.Unlock()
}

// QuotaEstimateDelta returns the pending display-only usage adjustment.
func (m *Manager) QuotaEstimateDelta() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.quotaDelta
}

// TokenExpiry decodes the access token's exp claim without verifying the
// signature. ok is false for opaque or expiry-less tokens.
func (m *Manager) TokenExpiry() (expiry time.Time, ok bool) {
	token := m.AccessToken()
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}

// AccessToken implements api.Credentials.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.access
}

// RefreshToken implements api.Credentials.
func (m *Manager) RefreshToken() (string, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.refresh, m.generation
}

// SetTokens implements api.Credentials. An empty refresh token keeps the
// current one.
func (m *Manager) SetTokens(ctx context.Context, generation uint64, access, refresh string) error {
	// The store writes stay under the lock so a clear cannot run between
	// the generation check and the writes.
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != m.generation {
		return api.ErrSessionChanged
	}

	m.access = access
	if refresh != "" {
		m.refresh = refresh
	}
	refresh = m.refresh

	if err := m.store.Set(ctx, sessionstore.KeyAccessToken, access); err != nil {
		return fmt.Errorf("auth: saving access token: %w", err)
	}

	if err := m.store.Set(ctx, sessionstore.KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("auth: saving refresh token: %w", err)
	}

	return nil
}

// ClearSession implements api.Credentials.
func (m *Manager) ClearSession(ctx context.Context, generation uint64, reason string) bool {
	m.mu.Lock()
	if generation != m.generation {
		m.mu.Unlock()
		m.logger.Debug("ignoring clear for a replaced session", slog.String("reason", reason))

		return false
	}

	m.resetLocked()
	m.mu.Unlock()

	if err := m.dropPersisted(ctx, reason); err != nil {
		m.logger.Warn("clearing persisted session failed", slog.String("error", err.Error()))
	}

	return true
}

func (m *Manager) clearLogged(ctx context.Context, reason string) {
	if err := m.clear(ctx, reason); err != nil {
		m.logger.Warn("clearing persisted session failed", slog.String("error", err.Error()))
	}
}

// clear drops the in-memory session, then the persisted keys.
func (m *Manager) clear(ctx context.Context, reason string) error {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()

	return m.dropPersisted(ctx, reason)
}

// resetLocked ends the current generation. Caller holds m.mu.
func (m *Manager) resetLocked() {
	m.generation++
	m.state = LoggedOut
	m.access, m.refresh = "", ""
	m.user = nil
	m.quotaDelta = 0
}

func (m *Manager) dropPersisted(ctx context.Context, reason string) error {
	m.events.Publish(Event{State: LoggedOut, Reason: reason})

	m.logger.Info("session cleared", slog.String("reason", reason))

	if err := m.store.Delete(ctx, sessionstore.SessionKeys...); err != nil {
		return fmt.Errorf("auth: clearing session: %w", err)
	}

	return nil
}

func (m *Manager) persistSession(ctx context.Context, access, refresh string, user *api.User) error {
	if err := m.store.Set(ctx, sessionstore.KeyAccessToken, access); err != nil {
		return fmt.Errorf("auth: saving access token: %w", err)
	}

	if err := m.store.Set(ctx, sessionstore.KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("auth: saving refresh token: %w", err)
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("auth: encoding profile: %w", err)
	}

	if err := m.store.Set(ctx, sessionstore.KeyCurrentUser, string(data)); err != nil {
		return fmt.Errorf("auth: saving profile: %w", err)
	}

	return nil
}

// saveUser caches the profile; failures only cost the next start a revalidation.
func (m *Manager) saveUser(ctx context.Context, user *api.User) {
	data, err := json.Marshal(user)
	if err == nil {
		err = m.store.Set(ctx, sessionstore.KeyCurrentUser, string(data))
	}

	if err != nil {
		m.logger.Warn("caching profile failed", slog.String("error", err.Error()))
	}
}

// loadCachedUser returns the persisted profile, or nil if missing or corrupt.
func (m *Manager) loadCachedUser(ctx context.Context) *api.User {
	raw, err := sessionstore.GetOptional(ctx, m.store, sessionstore.KeyCurrentUser)
	if err != nil || raw == "" {
		return nil
	}

	var u api.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		m.logger.Warn("ignoring corrupt cached profile", slog.String("error", err.Error()))
		return nil
	}

	return &u
}
