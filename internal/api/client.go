package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Default per-call deadlines.
const (
	DefaultMetadataTimeout = 30 * time.Second
	DefaultUploadTimeout   = 120 * time.Second
	DefaultRefreshTimeout  = 10 * time.Second
	defaultUserAgent       = "cloudvault/0.1"
	maxErrorBody           = 64 * 1024
)

// Credentials supplies and updates the session's tokens. Defined at the
// consumer; the auth package provides the real implementation.
//
// Every login and every clear starts a new session generation. A refresh
// captures the generation with the refresh token and passes it back, so its
// outcome is dropped if the session it started from no longer exists.
type Credentials interface {
	AccessToken() string
	RefreshToken() (token string, generation uint64)
	// SetTokens returns ErrSessionChanged without storing anything when
	// generation is stale.
	SetTokens(ctx context.Context, generation uint64, access, refresh string) error
	// ClearSession reports whether the session was cleared; it is a no-op
	// when generation is stale.
	ClearSession(ctx context.Context, generation uint64, reason string) bool
}

// Observer receives request telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
	ObserveRefresh(outcome string)
}

// Client is an HTTP client for the storage service API.
type Client struct {
	baseURL      string
	shareBaseURL string
	httpClient   *http.Client
	creds        Credentials
	logger       *slog.Logger
	userAgent    string
	limiter      *BandwidthLimiter
	observer     Observer

	metadataTimeout time.Duration
	uploadTimeout   time.Duration
	refreshTimeout  time.Duration

	refresher *refreshCoordinator
}

// Option configures a Client.
type Option func(*Client)

// WithTimeouts overrides the per-call deadlines. Zero values keep the default.
func WithTimeouts(metadata, upload, refresh time.Duration) Option {
	return func(c *Client) {
		if metadata > 0 {
			c.metadataTimeout = metadata
		}

		if upload > 0 {
			c.uploadTimeout = upload
		}

		if refresh > 0 {
			c.refreshTimeout = refresh
		}
	}
}

// WithShareBaseURL sets the root for public share endpoints.
func WithShareBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.shareBaseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithBandwidthLimiter throttles upload bodies. A nil limiter is unlimited.
func WithBandwidthLimiter(l *BandwidthLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithObserver attaches request telemetry.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates an API client. baseURL is the API root, e.g.
// "https://files.example.com/api". creds may be nil for anonymous use.
func NewClient(baseURL string, httpClient *http.Client, creds Credentials, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if creds == nil {
		creds = anonymous{}
	}

	base := strings.TrimRight(baseURL, "/")

	c := &Client{
		baseURL:         base,
		shareBaseURL:    strings.TrimSuffix(base, "/api"),
		httpClient:      httpClient,
		creds:           creds,
		logger:          logger,
		userAgent:       defaultUserAgent,
		metadataTimeout: DefaultMetadataTimeout,
		uploadTimeout:   DefaultUploadTimeout,
		refreshTimeout:  DefaultRefreshTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.refresher = newRefreshCoordinator(creds, c.refreshTokens, c.refreshTimeout, logger, c.observeRefresh)

	return c
}

// RefreshState reports the refresh coordinator's current state.
func (c *Client) RefreshState() RefreshState {
	return c.refresher.State()
}

// bodyFunc produces a fresh request body and its content type. It is called
// once per attempt so the body can be replayed after a token refresh.
type bodyFunc func() (io.ReadCloser, string, error)

// request describes one logical API call.
type request struct {
	method string
	path   string // appended to the base URL, already escaped
	route  string // low-cardinality name for telemetry
	query  url.Values
	body   bodyFunc

	timeout   time.Duration
	public    bool // served from the share root
	anon      bool // never sends a bearer token, never refreshes
	noRefresh bool // sends the bearer token but returns a 401 as-is
}

// jsonBody marshals v once and replays the bytes on every attempt.
func jsonBody(v any) (bodyFunc, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: encoding request: %w", err)
	}

	return func() (io.ReadCloser, string, error) {
		return io.NopCloser(bytes.NewReader(data)), "application/json", nil
	}, nil
}

// call executes r and decodes the envelope's data into out (if non-nil).
func (c *Client) call(ctx context.Context, r *request, out any) error {
	env, err := c.callEnvelope(ctx, r)
	if err != nil {
		return err
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("api: decoding %s response: %w", r.route, err)
	}

	return nil
}

// callEnvelope executes r, transparently recovering from one expired access
// token, and returns the decoded envelope of a successful response.
func (c *Client) callEnvelope(ctx context.Context, r *request) (*envelope, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.metadataTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, sentToken, err := c.send(ctx, r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !r.anon && !r.noRefresh && sentToken != "" {
		origErr := c.errorFromResponse(resp)

		c.logger.Info("access token rejected, refreshing",
			slog.String("method", r.method),
			slog.String("route", r.route),
		)

		if _, refreshErr := c.refresher.Await(ctx, sentToken); refreshErr != nil {
			c.logger.Warn("token refresh did not recover request",
				slog.String("route", r.route),
				slog.String("error", refreshErr.Error()),
			)

			return nil, origErr
		}

		// Exactly one resubmission; a second 401 is returned as-is.
		resp, _, err = c.send(ctx, r)
		if err != nil {
			return nil, err
		}
	}

	return c.decodeEnvelope(resp, r)
}

// send performs a single HTTP attempt and returns the token it carried.
func (c *Client) send(ctx context.Context, r *request) (*http.Response, string, error) {
	base := c.baseURL
	if r.public {
		base = c.shareBaseURL
	}

	u := base + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var (
		body        io.ReadCloser
		contentType string
	)

	if r.body != nil {
		var err error

		body, contentType, err = r.body()
		if err != nil {
			return nil, "", fmt.Errorf("api: preparing %s body: %w", r.route, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		if body != nil {
			body.Close()
		}

		return nil, "", fmt.Errorf("api: creating request: %w", err)
	}

	token := ""
	if !r.anon {
		token = c.creds.AccessToken()
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	if c.observer != nil {
		c.observer.ObserveRequest(r.method, r.route, status, time.Since(start))
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", fmt.Errorf("api: %s %s canceled: %w", r.method, r.route, ctxErr)
		}

		return nil, "", fmt.Errorf("api: %s %s failed: %w", r.method, r.route, err)
	}

	c.logger.Debug("request completed",
		slog.String("method", r.method),
		slog.String("route", r.route),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	return resp, token, nil
}

// decodeEnvelope consumes resp. Non-2xx statuses and success=false envelopes
// become *APIError.
func (c *Client) decodeEnvelope(resp *http.Response, r *request) (*envelope, error) {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.errorFromResponse(resp)
	}

	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return &envelope{Success: true}, nil
		}

		return nil, fmt.Errorf("api: decoding %s envelope: %w", r.route, err)
	}

	if !env.Success {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  resp.Header.Get("X-Request-Id"),
			Message:    env.Message,
			Err:        ErrRejected,
			Domain:     classifyMessage(env.Message),
		}
	}

	return &env, nil
}

// errorFromResponse reads and closes resp's body and builds an *APIError.
func (c *Client) errorFromResponse(resp *http.Response) *APIError {
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		raw = nil
	}

	msg := ""

	var env envelope
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil && env.Message != "" {
		msg = env.Message
	} else if len(raw) > 0 && !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		msg = strings.TrimSpace(string(raw))
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Message:    msg,
		Err:        classifyStatus(resp.StatusCode),
		Domain:     classifyMessage(msg),
	}
}

// refreshTokens exchanges a refresh token for a new pair. It bypasses the
// 401 interception entirely.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := jsonBody(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair

	err = c.call(ctx, &request{
		method:  http.MethodPost,
		path:    "/auth/refresh",
		route:   "/auth/refresh",
		body:    body,
		timeout: c.refreshTimeout,
		anon:    true,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}

	if pair.Token == "" {
		return TokenPair{}, fmt.Errorf("%w: response carried no access token", ErrRefreshFailed)
	}

	return pair, nil
}

func (c *Client) observeRefresh(outcome string) {
	if c.observer != nil {
		c.observer.ObserveRefresh(outcome)
	}
}

// anonymous is the Credentials used when the client has no session.
type anonymous struct{}

func (anonymous) AccessToken() string                                     { return "" }
func (anonymous) RefreshToken() (string, uint64)                          { return "", 0 }
func (anonymous) SetTokens(context.Context, uint64, string, string) error { return nil }
func (anonymous) ClearSession(context.Context, uint64, string) bool       { return false }

// ResetRefresh returns a failed refresh coordinator to idle. The session
// manager calls it after a fresh login.
func (c *Client) ResetRefresh() {
	c.refresher.Reset()
}
