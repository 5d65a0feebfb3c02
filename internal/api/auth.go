package api

import (
	"context"
	"net/http"
)

// Register creates an account. It never returns tokens; the user must log
// in separately.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*Confirmation, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	env, err := c.callEnvelope(ctx, &request{
		method: http.MethodPost,
		path:   "/auth/register",
		route:  "/auth/register",
		body:   body,
		anon:   true,
	})
	if err != nil {
		return nil, err
	}

	return &Confirmation{Message: env.Message}, nil
}

// Login exchanges credentials for a token pair and the user's profile.
// identifier is an email address or a username.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	body, err := jsonBody(map[string]string{
		"identifier": identifier,
		"password":   password,
	})
	if err != nil {
		return nil, err
	}

	var res LoginResult

	if err := c.call(ctx, &request{
		method: http.MethodPost,
		path:   "/auth/login",
		route:  "/auth/login",
		body:   body,
		anon:   true,
	}, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// Logout invalidates the session server-side.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.callEnvelope(ctx, &request{
		method:    http.MethodPost,
		path:      "/auth/logout",
		route:     "/auth/logout",
		noRefresh: true,
	})

	return err
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var res struct {
		User *User `json:"user"`
	}

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/auth/me",
		route:  "/auth/me",
	}, &res); err != nil {
		return nil, err
	}

	if res.User == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "profile missing from response", Err: ErrRejected}
	}

	return res.User, nil
}
