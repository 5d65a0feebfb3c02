package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudvault/internal/api"
	"github.com/tonimelisma/cloudvault/internal/sessionstore"
)

// fakeBackend is a scripted Backend.
type fakeBackend struct {
	mu sync.Mutex

	loginRes *api.LoginResult
	loginErr error
	meUser   *api.User
	meErr    error
	logout   error

	logoutCalls   int
	meCalls       int
	registerCalls int
	resets        int
}

func (f *fakeBackend) Login(_ context.Context, _, _ string) (*api.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeBackend) Register(_ context.Context, _ api.RegisterRequest) (*api.Confirmation, error) {
	f.registerCalls++
	return &api.Confirmation{Message: "User registered successfully"}, nil
}

func (f *fakeBackend) Logout(_ context.Context) error {
	f.logoutCalls++
	return f.logout
}

func (f *fakeBackend) Me(_ context.Context) (*api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.meCalls++

	return f.meUser.Clone(), f.meErr
}

func (f *fakeBackend) ResetRefresh() { f.resets++ }

func userWithStats(used, quota int64) *api.User {
	return &api.User{
		ID:       "u1",
		Username: "ada",
		Email:    "ada@example.com",
		StorageStats: &api.StorageStats{
			TotalSize:      used,
			Quota:          quota,
			RemainingQuota: quota - used,
		},
	}
}

func refreshOf(m *Manager) string {
	tok, _ := m.RefreshToken()
	return tok
}

// setTokens rotates the tokens of the current session.
func setTokens(t *testing.T, m *Manager, access, refresh string) {
	t.Helper()

	_, gen := m.RefreshToken()
	require.NoError(t, m.SetTokens(context.Background(), gen, access, refresh))
}

func newManager(t *testing.T, b Backend) (*Manager, sessionstore.Store) {
	t.Helper()

	store := sessionstore.NewMemoryStore()
	m := NewManager(store, slog.Default())
	m.Attach(b)

	return m, store
}

func TestLogin_PersistsSession(t *testing.T) {
	b := &fakeBackend{loginRes: &api.LoginResult{
		TokenPair: api.TokenPair{Token: "acc", RefreshToken: "ref"},
		User:      userWithStats(10, 100),
	}}
	m, store := newManager(t, b)
	ctx := context.Background()

	user, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, "acc", m.AccessToken())
	assert.Equal(t, "ref", refreshOf(m))
	assert.Equal(t, 1, b.resets)

	v, err := store.Get(ctx, sessionstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc", v)

	v, err = store.Get(ctx, sessionstore.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "ref", v)

	raw, err := store.Get(ctx, sessionstore.KeyCurrentUser)
	require.NoError(t, err)

	var cached api.User
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "u1", cached.ID)
}

func TestLogin_FailureKeepsLoggedOut(t *testing.T) {
	b := &fakeBackend{loginErr: &api.APIError{StatusCode: 401, Message: "Invalid credentials", Err: api.ErrUnauthorized}}
	m, store := newManager(t, b)

	_, err := m.Login(context.Background(), "ada", "wrong")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "login", authErr.Op)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, LoggedOut, m.State())

	_, getErr := store.Get(context.Background(), sessionstore.KeyAccessToken)
	assert.ErrorIs(t, getErr, sessionstore.ErrNotFound)
}

func TestLogin_ValidationSendsNothing(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b)

	_, err := m.Login(context.Background(), "  ", "")

	var v *ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Fields, "identifier")
	assert.Contains(t, v.Fields, "password")
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	b := &fakeBackend{
		loginRes: &api.LoginResult{TokenPair: api.TokenPair{Token: "acc", RefreshToken: "ref"}, User: userWithStats(0, 1)},
		logout:   errors.New("network down"),
	}
	m, store := newManager(t, b)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, sessionstore.KeyTheme, "dark"))

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	events := m.Subscribe()
	defer m.Unsubscribe(events)

	require.NoError(t, m.Logout(ctx, true))

	assert.Equal(t, 1, b.logoutCalls)
	assert.Equal(t, LoggedOut, m.State())
	assert.Empty(t, m.AccessToken())
	assert.Empty(t, refreshOf(m))
	assert.Nil(t, m.User())

	for _, k := range sessionstore.SessionKeys {
		_, err := store.Get(ctx, k)
		assert.ErrorIs(t, err, sessionstore.ErrNotFound)
	}

	theme, err := store.Get(ctx, sessionstore.KeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)

	ev := <-events
	assert.Equal(t, LoggedOut, ev.State)
	assert.Equal(t, "logout", ev.Reason)
}

func TestLogout_LocalOnlySkipsServer(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b)

	setTokens(t, m, "acc", "ref")
	require.NoError(t, m.Logout(context.Background(), false))
	assert.Zero(t, b.logoutCalls)
	assert.Empty(t, m.AccessToken())
}

func TestRefreshProfile_UpdatesAndDropsEstimate(t *testing.T) {
	b := &fakeBackend{
		loginRes: &api.LoginResult{TokenPair: api.TokenPair{Token: "acc"}, User: userWithStats(10, 100)},
		meUser:   userWithStats(40, 100),
	}
	m, _ := newManager(t, b)
	ctx := context.Background()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	m.AdjustQuotaEstimate(25)
	assert.Equal(t, int64(25), m.QuotaEstimateDelta())

	user, ok := m.RefreshProfile(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(40), user.StorageStats.TotalSize)
	assert.Equal(t, int64(60), m.User().StorageStats.RemainingQuota)
	assert.Zero(t, m.QuotaEstimateDelta())
}

func TestRefreshProfile_FailureLeavesSession(t *testing.T) {
	b := &fakeBackend{
		loginRes: &api.LoginResult{TokenPair: api.TokenPair{Token: "acc"}, User: userWithStats(10, 100)},
		meErr:    errors.New("timeout"),
	}
	m, _ := newManager(t, b)

	_, err := m.Login(context.Background(), "ada", "Secret1")
	require.NoError(t, err)

	user, ok := m.RefreshProfile(context.Background())
	assert.False(t, ok)
	assert.Nil(t, user)
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, int64(10), m.User().StorageStats.TotalSize)
}

func TestRefreshProfile_LoggedOutIsNoop(t *testing.T) {
	b := &fakeBackend{meUser: userWithStats(1, 2)}
	m, _ := newManager(t, b)

	_, ok := m.RefreshProfile(context.Background())
	assert.False(t, ok)
	assert.Zero(t, b.meCalls)
}

func seedSession(t *testing.T, store sessionstore.Store) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sessionstore.KeyAccessToken, "acc"))
	require.NoError(t, store.Set(ctx, sessionstore.KeyRefreshToken, "ref"))
	require.NoError(t, store.Set(ctx, sessionstore.KeyCurrentUser, `{"id":"u1","username":"ada"}`))
}

func TestInitialize_ValidSession(t *testing.T) {
	b := &fakeBackend{meUser: userWithStats(5, 50)}
	m, store := newManager(t, b)
	seedSession(t, store)

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, int64(5), m.User().StorageStats.TotalSize)
	assert.Equal(t, "acc", m.AccessToken())
}

func TestInitialize_UnauthorizedClearsTokens(t *testing.T) {
	b := &fakeBackend{meErr: &api.APIError{StatusCode: 401, Err: api.ErrUnauthorized}}
	m, store := newManager(t, b)
	seedSession(t, store)

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, LoggedOut, m.State())

	_, err := store.Get(context.Background(), sessionstore.KeyAccessToken)
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestInitialize_OtherErrorKeepsTokens(t *testing.T) {
	b := &fakeBackend{meErr: &api.APIError{StatusCode: 503, Err: api.ErrServiceUnavailable}}
	m, store := newManager(t, b)
	seedSession(t, store)

	err := m.Initialize(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, LoggedOut, m.State())

	v, getErr := store.Get(context.Background(), sessionstore.KeyAccessToken)
	require.NoError(t, getErr)
	assert.Equal(t, "acc", v)
}

func TestInitialize_NoCachedUserSkipsValidation(t *testing.T) {
	b := &fakeBackend{}
	m, store := newManager(t, b)
	require.NoError(t, store.Set(context.Background(), sessionstore.KeyAccessToken, "acc"))

	require.NoError(t, m.Initialize(context.Background()))
	assert.Zero(t, b.meCalls)
	assert.Equal(t, LoggedOut, m.State())
}

func TestRegister(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b)

	valid := api.RegisterRequest{Username: "ada_l", Email: "ada@example.com", Password: "Secret1", ConfirmPassword: "Secret1"}

	conf, err := m.Register(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", conf.Message)
	assert.Equal(t, LoggedOut, m.State())
	assert.Empty(t, m.AccessToken())

	tests := []struct {
		name  string
		req   api.RegisterRequest
		field string
	}{
		{"short username", api.RegisterRequest{Username: "ab", Email: "a@b.co", Password: "Secret1", ConfirmPassword: "Secret1"}, "username"},
		{"bad username", api.RegisterRequest{Username: "a b c", Email: "a@b.co", Password: "Secret1", ConfirmPassword: "Secret1"}, "username"},
		{"bad email", api.RegisterRequest{Username: "abc", Email: "nope", Password: "Secret1", ConfirmPassword: "Secret1"}, "email"},
		{"weak password", api.RegisterRequest{Username: "abc", Email: "a@b.co", Password: "secret1", ConfirmPassword: "secret1"}, "password"},
		{"short password", api.RegisterRequest{Username: "abc", Email: "a@b.co", Password: "Ab1", ConfirmPassword: "Ab1"}, "password"},
		{"mismatch", api.RegisterRequest{Username: "abc", Email: "a@b.co", Password: "Secret1", ConfirmPassword: "Secret2"}, "confirmPassword"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Register(context.Background(), tt.req)

			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Contains(t, v.Fields, tt.field)
		})
	}

	assert.Equal(t, 1, b.registerCalls)
}

func TestTokenExpiry(t *testing.T) {
	m, _ := newManager(t, &fakeBackend{})

	_, ok := m.TokenExpiry()
	assert.False(t, ok)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	setTokens(t, m, signed, "ref")

	got, ok := m.TokenExpiry()
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	setTokens(t, m, "opaque-token", "")

	_, ok = m.TokenExpiry()
	assert.False(t, ok)
	assert.Equal(t, "ref", refreshOf(m))
}

// TestManager_WithTransport drives the manager through the real API client:
// an expired token is refreshed, and the rotated pair lands in the store.
func TestManager_WithTransport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
			"token": "acc-1", "refreshToken": "ref-1",
			"user": map[string]any{"id": "u1", "storageStats": map[string]any{"totalSize": 10, "quota": 100, "remainingQuota": 90}},
		}})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc-2" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Token expired"})

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
			"user": map[string]any{"id": "u1", "storageStats": map[string]any{"totalSize": 30, "quota": 100, "remainingQuota": 70}},
		}})
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
			"token": "acc-2", "refreshToken": "ref-2",
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := sessionstore.NewMemoryStore()
	m := NewManager(store, nil)
	m.Attach(api.NewClient(srv.URL+"/api", srv.Client(), m, nil))

	ctx := context.Background()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	user, ok := m.RefreshProfile(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(70), user.StorageStats.RemainingQuota)

	v, err := store.Get(ctx, sessionstore.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "ref-2", v)
}

func TestSetTokens_ReplacedSessionIgnored(t *testing.T) {
	b := &fakeBackend{loginRes: &api.LoginResult{
		TokenPair: api.TokenPair{Token: "acc", RefreshToken: "ref"},
		User:      userWithStats(10, 100),
	}}
	m, store := newManager(t, b)
	ctx := context.Background()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	_, gen := m.RefreshToken()
	require.NoError(t, m.Logout(ctx, false))

	err = m.SetTokens(ctx, gen, "late", "late-ref")
	require.ErrorIs(t, err, api.ErrSessionChanged)
	assert.Empty(t, m.AccessToken())
	assert.Empty(t, refreshOf(m))

	_, err = store.Get(ctx, sessionstore.KeyAccessToken)
	assert.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestClearSession_ReplacedSessionIgnored(t *testing.T) {
	b := &fakeBackend{loginRes: &api.LoginResult{
		TokenPair: api.TokenPair{Token: "acc", RefreshToken: "ref"},
		User:      userWithStats(10, 100),
	}}
	m, store := newManager(t, b)
	ctx := context.Background()

	_, stale := m.RefreshToken()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	assert.False(t, m.ClearSession(ctx, stale, "token refresh failed"))
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, "acc", m.AccessToken())

	v, err := store.Get(ctx, sessionstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc", v)

	_, current := m.RefreshToken()
	assert.True(t, m.ClearSession(ctx, current, "token refresh failed"))
	assert.Equal(t, LoggedOut, m.State())
}

func TestLoginAndRegister_WithoutBackend(t *testing.T) {
	m := NewManager(sessionstore.NewMemoryStore(), nil)

	_, err := m.Login(context.Background(), "ada", "Secret1")
	require.ErrorIs(t, err, errNoBackend)

	_, err = m.Register(context.Background(), api.RegisterRequest{
		Username: "ada_l", Email: "ada@example.com", Password: "Secret1", ConfirmPassword: "Secret1",
	})
	require.ErrorIs(t, err, errNoBackend)
	assert.Equal(t, LoggedOut, m.State())
}

// heldRefreshServer rejects acc-1 on /auth/me and holds /auth/refresh until
// release is closed. Each login issues acc-<n>/ref-<n>.
type heldRefreshServer struct {
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	logins int
}

func newHeldRefreshServer(t *testing.T, refreshOK bool) (*heldRefreshServer, string) {
	t.Helper()

	hs := &heldRefreshServer{entered: make(chan struct{}), release: make(chan struct{})}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		hs.mu.Lock()
		hs.logins++
		n := hs.logins
		hs.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
			"token": fmt.Sprintf("acc-%d", n), "refreshToken": fmt.Sprintf("ref-%d", n),
			"user": map[string]any{"id": "u1", "storageStats": map[string]any{"totalSize": 10, "quota": 100, "remainingQuota": 90}},
		}})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Token expired"})
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		close(hs.entered)
		<-hs.release

		if !refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Invalid refresh token"})

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{
			"token": "rotated", "refreshToken": "rotated-ref",
		}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return hs, srv.URL + "/api"
}

func TestManager_LogoutDuringRefreshStaysLoggedOut(t *testing.T) {
	hs, baseURL := newHeldRefreshServer(t, true)

	store := sessionstore.NewMemoryStore()
	m := NewManager(store, nil)
	m.Attach(api.NewClient(baseURL, http.DefaultClient, m, nil))

	ctx := context.Background()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	done := make(chan bool)

	go func() {
		_, ok := m.RefreshProfile(ctx)
		done <- ok
	}()

	<-hs.entered
	require.NoError(t, m.Logout(ctx, false))
	close(hs.release)

	assert.False(t, <-done)
	assert.Equal(t, LoggedOut, m.State())
	assert.Empty(t, m.AccessToken())
	assert.Empty(t, refreshOf(m))

	for _, k := range sessionstore.SessionKeys {
		_, err := store.Get(ctx, k)
		assert.ErrorIs(t, err, sessionstore.ErrNotFound, k)
	}
}

func TestManager_FailedRefreshSparesNewLogin(t *testing.T) {
	hs, baseURL := newHeldRefreshServer(t, false)

	store := sessionstore.NewMemoryStore()
	m := NewManager(store, nil)
	m.Attach(api.NewClient(baseURL, http.DefaultClient, m, nil))

	ctx := context.Background()

	_, err := m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	done := make(chan bool)

	go func() {
		_, ok := m.RefreshProfile(ctx)
		done <- ok
	}()

	<-hs.entered

	_, err = m.Login(ctx, "ada", "Secret1")
	require.NoError(t, err)

	close(hs.release)

	assert.False(t, <-done)
	assert.Equal(t, Authenticated, m.State())
	assert.Equal(t, "acc-2", m.AccessToken())
	assert.Equal(t, "ref-2", refreshOf(m))

	v, err := store.Get(ctx, sessionstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-2", v)
}
