package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RefreshState is the refresh coordinator's lifecycle state.
type RefreshState int

// Refresh coordinator states. Failed persists until the next successful
// refresh or until new tokens are issued by login.
const (
	RefreshIdle RefreshState = iota
	RefreshInFlight
	RefreshFailed
)

func (s RefreshState) String() string {
	switch s {
	case RefreshIdle:
		return "idle"
	case RefreshInFlight:
		return "refreshing"
	case RefreshFailed:
		return "failed"
	default:
		return fmt.Sprintf("RefreshState(%d)", int(s))
	}
}

// Refresh outcomes reported to the Observer.
const (
	refreshOutcomeSuccess    = "success"
	refreshOutcomeFailure    = "failure"
	refreshOutcomeNoToken    = "no_token"
	refreshOutcomeSuperseded = "superseded"
)

// refreshFunc exchanges a refresh token for a new pair.
type refreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// refreshCall is the shared result of one refresh attempt. done is closed
// once token/err are final.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// refreshCoordinator collapses concurrent 401s into one refresh request.
// Every waiter receives the same result, and none resumes before the refresh
// settles.
type refreshCoordinator struct {
	creds   Credentials
	fn      refreshFunc
	timeout time.Duration
	logger  *slog.Logger
	observe func(outcome string)

	mu       sync.Mutex
	state    RefreshState
	inflight *refreshCall
}

func newRefreshCoordinator(
	creds Credentials, fn refreshFunc, timeout time.Duration, logger *slog.Logger, observe func(string),
) *refreshCoordinator {
	return &refreshCoordinator{
		creds:   creds,
		fn:      fn,
		timeout: timeout,
		logger:  logger,
		observe: observe,
	}
}

// State returns the current coordinator state.
func (rc *refreshCoordinator) State() RefreshState {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.state
}

// Await returns a usable access token after staleToken was rejected. If the
// session already holds a different token (a refresh completed after the
// rejected request was sent), that token is returned without a new refresh.
// Otherwise the caller joins the in-flight refresh or starts one.
func (rc *refreshCoordinator) Await(ctx context.Context, staleToken string) (string, error) {
	rc.mu.Lock()

	if current := rc.creds.AccessToken(); current != "" && current != staleToken {
		rc.mu.Unlock()
		rc.observe(refreshOutcomeSuperseded)

		return current, nil
	}

	call := rc.inflight
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		rc.inflight = call
		rc.state = RefreshInFlight

		go rc.run(call)
	}

	rc.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// run performs the refresh on a context detached from any single waiter so
// one caller's cancellation cannot fail the others.
func (rc *refreshCoordinator) run(call *refreshCall) {
	ctx, cancel := context.WithTimeout(context.Background(), rc.timeout)
	defer cancel()

	var (
		pair    TokenPair
		err     error
		outcome = refreshOutcomeSuccess
	)

	refreshToken, gen := rc.creds.RefreshToken()
	if refreshToken == "" {
		err = ErrNoRefreshToken
		outcome = refreshOutcomeNoToken
	} else {
		pair, err = rc.fn(ctx, refreshToken)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
			outcome = refreshOutcomeFailure
		}
	}

	rc.mu.Lock()

	switch {
	case err == nil:
		setErr := rc.creds.SetTokens(ctx, gen, pair.Token, pair.RefreshToken)

		switch {
		case errors.Is(setErr, ErrSessionChanged):
			// Logged out or logged in again while the refresh was in flight.
			rc.state = RefreshIdle
			call.err = setErr
			outcome = refreshOutcomeSuperseded

			rc.logger.Info("discarding refreshed tokens for a replaced session")
		case setErr != nil:
			// The new token is still valid for this process.
			rc.logger.Warn("persisting refreshed tokens failed", slog.String("error", setErr.Error()))

			fallthrough
		default:
			rc.state = RefreshIdle
			call.token = pair.Token

			rc.logger.Info("access token refreshed")
		}
	case rc.creds.ClearSession(ctx, gen, "token refresh failed"):
		rc.state = RefreshFailed
		call.err = err

		rc.logger.Warn("token refresh failed, session cleared", slog.String("error", err.Error()))
	default:
		// The session that failed to refresh is already gone; leave its
		// replacement alone.
		rc.state = RefreshIdle
		call.err = err

		rc.logger.Info("token refresh failed for a replaced session", slog.String("error", err.Error()))
	}

	rc.inflight = nil
	rc.mu.Unlock()

	close(call.done)
	rc.observe(outcome)
}

// Reset returns a failed coordinator to idle. Called when a fresh login
// issues new tokens.
func (rc *refreshCoordinator) Reset() {
	rc.mu.Lock()
	if rc.state == RefreshFailed {
		rc.state = RefreshIdle
	}
	rc.mu.Unlock()
}
