package api

import (
	"context"
	"net/http"
	"net/url"
)

// Public share endpoints live at the service root, not under the API prefix,
// and never carry the caller's token.

// PublicShare looks up a share by its short code.
func (c *Client) PublicShare(ctx context.Context, code string) (*PublicShare, error) {
	var share PublicShare

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/share/" + url.PathEscape(code),
		route:  "/share/:code",
		public: true,
		anon:   true,
	}, &share); err != nil {
		return nil, err
	}

	return &share, nil
}

// PublicShareDownload returns the download link for a share.
func (c *Client) PublicShareDownload(ctx context.Context, code string) (*DownloadLink, error) {
	var link DownloadLink

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/share/" + url.PathEscape(code) + "/download",
		route:  "/share/:code/download",
		public: true,
		anon:   true,
	}, &link); err != nil {
		return nil, err
	}

	return &link, nil
}

// VerifySharePassword unlocks a password-protected share and returns its
// download link.
func (c *Client) VerifySharePassword(ctx context.Context, code, password string) (*DownloadLink, error) {
	body, err := jsonBody(map[string]string{"password": password})
	if err != nil {
		return nil, err
	}

	var link DownloadLink

	if err := c.call(ctx, &request{
		method: http.MethodPost,
		path:   "/share/" + url.PathEscape(code) + "/password",
		route:  "/share/:code/password",
		body:   body,
		public: true,
		anon:   true,
	}, &link); err != nil {
		return nil, err
	}

	return &link, nil
}
