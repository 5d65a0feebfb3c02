package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Default page size for ListFiles.
const DefaultListLimit = 50

// ListFiles returns one page of the folder at path ("" is the root). A
// non-positive limit uses DefaultListLimit.
func (c *Client) ListFiles(ctx context.Context, path string, limit, offset int) (*Listing, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	if offset < 0 {
		offset = 0
	}

	q := url.Values{}
	q.Set("path", path)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var listing Listing

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/files/list",
		route:  "/files/list",
		query:  q,
	}, &listing); err != nil {
		return nil, err
	}

	if listing.Path == "" {
		listing.Path = path
	}

	return &listing, nil
}

// DeleteFile removes the object stored under key.
func (c *Client) DeleteFile(ctx context.Context, key string) error {
	_, err := c.callEnvelope(ctx, &request{
		method: http.MethodDelete,
		path:   "/files/" + url.PathEscape(key),
		route:  "/files/:key",
	})

	return err
}

// FileInfo fetches metadata for the object stored under key.
func (c *Client) FileInfo(ctx context.Context, key string) (*FileInfo, error) {
	var info FileInfo

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/files/info/" + url.PathEscape(key),
		route:  "/files/info/:key",
	}, &info); err != nil {
		return nil, err
	}

	if info.Key == "" {
		info.Key = key
	}

	return &info, nil
}

// DownloadURL asks the server for a short-lived download link.
func (c *Client) DownloadURL(ctx context.Context, key string) (*DownloadLink, error) {
	var link DownloadLink

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/files/download/" + url.PathEscape(key),
		route:  "/files/download/:key",
	}, &link); err != nil {
		return nil, err
	}

	if link.DownloadURL == "" {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "Failed to get download URL", Err: ErrRejected}
	}

	return &link, nil
}

// ShareFile creates a public link for the file with the given id. A zero
// ExpiresIn uses DefaultShareExpiryDays.
func (c *Client) ShareFile(ctx context.Context, fileID string, opts ShareOptions) (*Share, error) {
	if opts.ExpiresIn <= 0 {
		opts.ExpiresIn = DefaultShareExpiryDays
	}

	body, err := jsonBody(opts)
	if err != nil {
		return nil, err
	}

	var share Share

	if err := c.call(ctx, &request{
		method: http.MethodPost,
		path:   "/files/share/" + url.PathEscape(fileID),
		route:  "/files/share/:id",
		body:   body,
	}, &share); err != nil {
		return nil, err
	}

	if share.FileID == "" {
		share.FileID = fileID
	}

	return &share, nil
}

// Shares lists the caller's share links.
func (c *Client) Shares(ctx context.Context) ([]Share, error) {
	env, err := c.callEnvelope(ctx, &request{
		method: http.MethodGet,
		path:   "/files/shares",
		route:  "/files/shares",
	})
	if err != nil {
		return nil, err
	}

	return decodeList[Share](env.Data, "shares")
}

// DeactivateShare revokes a share link.
func (c *Client) DeactivateShare(ctx context.Context, shareID string) error {
	_, err := c.callEnvelope(ctx, &request{
		method: http.MethodDelete,
		path:   "/files/share/" + url.PathEscape(shareID),
		route:  "/files/share/:id",
	})

	return err
}
