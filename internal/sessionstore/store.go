// Package sessionstore persists the client's session state (tokens, the
// cached user profile, UI preferences) as independent string keys. Each key
// can be read, written, and cleared on its own so that a corrupt or missing
// value never takes the rest of the session down with it.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Key names a persisted value.
type Key string

// Persisted keys. Token keys hold opaque bearer strings; KeyCurrentUser holds
// the JSON-encoded profile last returned by the server.
const (
	KeyAccessToken  Key = "access_token"
	KeyRefreshToken Key = "refresh_token"
	KeyCurrentUser  Key = "current_user"
	KeyTheme        Key = "theme"
)

// SessionKeys are the keys removed on logout. The theme preference survives.
var SessionKeys = []Key{KeyAccessToken, KeyRefreshToken, KeyCurrentUser}

// ErrNotFound is returned by Get when the key has never been set or was cleared.
var ErrNotFound = errors.New("sessionstore: key not found")

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// File names inside the data directory.
const (
	sessionFileName = "session.json"
	sessionDBName   = "session.db"
)

// Store is a flat key/value store. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, keys ...Key) error
	Close() error
}

// Open returns the store selected by backend, rooted at dataDir.
func Open(backend, dataDir string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dataDir, sessionFileName), logger), nil
	case BackendSQLite:
		return NewSQLiteStore(context.Background(), filepath.Join(dataDir, sessionDBName), logger)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("sessionstore: unknown backend %q", backend)
	}
}

// GetOptional is Get with ErrNotFound folded into an empty string.
func GetOptional(ctx context.Context, s Store, key Key) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}

	return v, err
}
