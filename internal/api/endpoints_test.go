package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiles_QueryAndDecoding(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docs", r.URL.Query().Get("path"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "0", r.URL.Query().Get("offset"))

		writeOK(w, map[string]any{"items": []any{
			map[string]any{"_id": "f1", "name": "a.txt", "path": "docs/a.txt", "type": "file", "size": 12, "lastModified": "2024-03-01T10:00:00Z"},
			map[string]any{"id": "d1", "name": "sub", "path": "docs/sub", "type": "folder"},
		}})
	})

	c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "t"})

	listing, err := c.ListFiles(context.Background(), "docs", 0, -5)
	require.NoError(t, err)
	require.Len(t, listing.Items, 2)

	assert.Equal(t, "docs", listing.Path)
	assert.Equal(t, "f1", listing.Items[0].ID)
	assert.Equal(t, int64(12), listing.Items[0].Size)
	assert.Equal(t, 2024, listing.Items[0].LastModified.Year())
	assert.False(t, listing.Items[0].IsFolder())
	assert.True(t, listing.Items[1].IsFolder())
	assert.True(t, listing.Items[1].LastModified.IsZero())
}

func TestDeleteFile_EscapesKey(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, http.MethodDelete, r.Method)
		writeOK(w, nil)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL+"/api", &memCreds{access: "t"})

	require.NoError(t, c.DeleteFile(context.Background(), "docs/a b.txt"))
	assert.Equal(t, "/api/files/docs%2Fa%20b.txt", gotPath)
}

func TestShareFile_DefaultOptions(t *testing.T) {
	var body map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/share/f1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeOK(w, map[string]any{"id": "s1", "shortCode": "abc", "shareUrl": "https://x/share/abc", "accessCount": 0, "isActive": true})
	})

	c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "t"})

	share, err := c.ShareFile(context.Background(), "f1", ShareOptions{})
	require.NoError(t, err)

	assert.InDelta(t, float64(DefaultShareExpiryDays), body["expiresIn"], 0)
	assert.Contains(t, body, "maxAccess")
	assert.Nil(t, body["maxAccess"])
	assert.Equal(t, "abc", share.ShortCode)
	assert.Equal(t, "f1", share.FileID)
}

func TestShares_AcceptsBareOrWrappedList(t *testing.T) {
	for name, data := range map[string]any{
		"bare":    []any{map[string]any{"id": "s1"}},
		"wrapped": map[string]any{"shares": []any{map[string]any{"id": "s1"}}},
	} {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/files/shares", func(w http.ResponseWriter, _ *http.Request) {
				writeOK(w, data)
			})

			c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "t"})

			shares, err := c.Shares(context.Background())
			require.NoError(t, err)
			require.Len(t, shares, 1)
			assert.Equal(t, "s1", shares[0].ID)
		})
	}
}

func TestValidateFolderName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"plain", "Reports", "Reports", ""},
		{"trimmed", "  Reports  ", "Reports", ""},
		{"empty", "   ", "", "required"},
		{"slash", "a/b", "", "invalid characters"},
		{"question", "why?", "", "invalid characters"},
		{"too long", strings.Repeat("a", MaxFolderNameLength+1), "", "too long"},
		{"max length", strings.Repeat("a", MaxFolderNameLength), strings.Repeat("a", MaxFolderNameLength), ""},
		{"nfc", "Café", "Café", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateFolderName(tt.in)
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidFolderName)
				assert.Contains(t, err.Error(), tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateFolder_InvalidNameSendsNothing(t *testing.T) {
	var calls int

	mux := http.NewServeMux()
	mux.HandleFunc("/api/folders/create", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		writeOK(w, nil)
	})

	c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "t"})

	_, err := c.CreateFolder(context.Background(), "bad|name", "")
	require.ErrorIs(t, err, ErrInvalidFolderName)
	assert.Zero(t, calls)

	folder, err := c.CreateFolder(context.Background(), "good", "docs")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "docs/good", folder.Path)
	assert.True(t, folder.IsFolder())
}

func TestPublicShare_UsesServiceRootWithoutToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/share/abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeOK(w, map[string]any{"fileName": "a.pdf", "fileSize": 10, "requiresPassword": true})
	})
	mux.HandleFunc("/share/abc/password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pw", body["password"])
		writeOK(w, map[string]any{"downloadUrl": "https://cdn/a.pdf", "fileName": "a.pdf"})
	})

	c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "secret"})

	share, err := c.PublicShare(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, share.RequiresPassword)

	link, err := c.VerifySharePassword(context.Background(), "abc", "pw")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.pdf", link.DownloadURL)
}

func TestDownload_StreamsContent(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/api/files/download/", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, map[string]any{"downloadUrl": srv.URL + "/blob", "fileName": "a.txt"})
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("content"))
	})

	c := newTestClient(t, srv.URL+"/api", &memCreds{access: "t"})

	var buf bytes.Buffer

	n, err := c.Download(context.Background(), "a.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "content", buf.String())
}

func TestDownload_MockURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/download/", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, map[string]any{"downloadUrl": "mock://bucket/a.txt"})
	})

	c := newTestClient(t, newTestServer(t, mux), &memCreds{access: "t"})

	_, err := c.Download(context.Background(), "a.txt", &bytes.Buffer{})
	require.ErrorIs(t, err, ErrMockDownload)
	assert.Equal(t, "File storage service is not properly configured. Please contact administrator.", DescribeDownload(err))
}

func TestDescribeDownload(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", &APIError{StatusCode: 503, Err: ErrServiceUnavailable}, "File download service is currently unavailable. Please contact administrator."},
		{"misconfigured", &APIError{StatusCode: 500, Err: ErrServerError, Domain: ErrStorageMisconfigured}, "File storage is not properly configured. Please contact administrator."},
		{"missing", &APIError{StatusCode: 404, Err: ErrNotFound, Domain: ErrFileNotFound}, "File not found in storage. It may have been deleted or moved."},
		{"access", &APIError{StatusCode: 403, Err: ErrForbidden, Domain: ErrStorageAccessDenied}, "Storage access error. Please contact administrator."},
		{"service", &APIError{StatusCode: 500, Err: ErrServerError, Domain: ErrStorageService}, "Storage service error. Please try again or contact administrator."},
		{"server message", &APIError{StatusCode: 400, Err: ErrBadRequest, Message: "Bad key"}, "Bad key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeDownload(tt.err))
		})
	}
}

func TestAPIError_Format(t *testing.T) {
	err := &APIError{StatusCode: 404, RequestID: "req-1", Err: ErrNotFound}
	assert.Equal(t, "api: HTTP 404 (request-id: req-1): Not Found", err.Error())

	err = &APIError{StatusCode: 400, Message: "bad", Err: ErrBadRequest}
	assert.Equal(t, "api: HTTP 400: bad", err.Error())
}
