package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// mockScheme marks a download URL issued by a server with no storage backend.
const mockScheme = "mock://"

// Download resolves key to a download link and streams the content to w.
// The presigned URL is fetched without the session token.
func (c *Client) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	link, err := c.DownloadURL(ctx, key)
	if err != nil {
		return 0, err
	}

	return c.FetchLink(ctx, link, w)
}

// FetchLink streams the content behind a download link to w.
func (c *Client) FetchLink(ctx context.Context, link *DownloadLink, w io.Writer) (int64, error) {
	if strings.HasPrefix(link.DownloadURL, mockScheme) {
		return 0, ErrMockDownload
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.DownloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("api: creating download request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("api: download failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, c.errorFromResponse(resp)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("api: reading download body: %w", err)
	}

	c.logger.Debug("download complete",
		slog.String("file", link.FileName),
		slog.Int64("bytes", n),
	)

	return n, nil
}

// DescribeDownload renders a download failure for an end user. A 503 means
// the download service itself is unavailable.
func DescribeDownload(err error) string {
	if errors.Is(err, ErrServiceUnavailable) {
		return "File download service is currently unavailable. Please contact administrator."
	}

	return Describe(err)
}
