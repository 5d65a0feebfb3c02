package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxFolderNameLength is the longest folder name the server accepts.
const MaxFolderNameLength = 255

// invalidFolderChars are rejected anywhere in a folder name.
const invalidFolderChars = `<>:"/\|?*`

// ErrInvalidFolderName is wrapped by ValidateFolderName failures.
var ErrInvalidFolderName = errors.New("api: invalid folder name")

// ValidateFolderName checks name against the server's folder rules and
// returns the NFC-normalized, trimmed name.
func ValidateFolderName(name string) (string, error) {
	clean := norm.NFC.String(strings.TrimSpace(name))

	switch {
	case clean == "":
		return "", fmt.Errorf("%w: Folder name is required", ErrInvalidFolderName)
	case strings.ContainsAny(clean, invalidFolderChars):
		return "", fmt.Errorf("%w: Folder name contains invalid characters", ErrInvalidFolderName)
	case len([]rune(clean)) > MaxFolderNameLength:
		return "", fmt.Errorf("%w: Folder name is too long (max %d characters)", ErrInvalidFolderName, MaxFolderNameLength)
	}

	return clean, nil
}

// CreateFolder creates name inside parent ("" is the root). The name is
// validated locally before any request is sent.
func (c *Client) CreateFolder(ctx context.Context, name, parent string) (*Entry, error) {
	clean, err := ValidateFolderName(name)
	if err != nil {
		return nil, err
	}

	body, err := jsonBody(map[string]string{"name": clean, "path": parent})
	if err != nil {
		return nil, err
	}

	var res struct {
		Folder *Entry `json:"folder"`
	}

	if err := c.call(ctx, &request{
		method: http.MethodPost,
		path:   "/folders/create",
		route:  "/folders/create",
		body:   body,
	}, &res); err != nil {
		return nil, err
	}

	if res.Folder == nil {
		res.Folder = &Entry{Name: clean, Path: joinRemote(parent, clean), Type: EntryFolder}
	}

	return res.Folder, nil
}

// ListFolders lists the sub-folders of path.
func (c *Client) ListFolders(ctx context.Context, path string) ([]Entry, error) {
	q := url.Values{}
	q.Set("path", path)

	env, err := c.callEnvelope(ctx, &request{
		method: http.MethodGet,
		path:   "/folders/list",
		route:  "/folders/list",
		query:  q,
	})
	if err != nil {
		return nil, err
	}

	return decodeList[Entry](env.Data, "folders")
}

// DeleteFolder removes a folder and everything beneath it.
func (c *Client) DeleteFolder(ctx context.Context, path string) error {
	_, err := c.callEnvelope(ctx, &request{
		method: http.MethodDelete,
		path:   "/folders/" + url.PathEscape(path),
		route:  "/folders/:path",
	})

	return err
}

// FolderInfo fetches aggregate information about a folder.
func (c *Client) FolderInfo(ctx context.Context, path string) (*FolderInfo, error) {
	var info FolderInfo

	if err := c.call(ctx, &request{
		method: http.MethodGet,
		path:   "/folders/info/" + url.PathEscape(path),
		route:  "/folders/info/:path",
	}, &info); err != nil {
		return nil, err
	}

	if info.Path == "" {
		info.Path = path
	}

	return &info, nil
}

// joinRemote joins remote path segments with "/", ignoring empty parts.
func joinRemote(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, "/")
}
