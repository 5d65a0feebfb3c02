package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FilePerms restricts the session file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the data directory.
const DirPerms = 0o700

// fileFormat is the on-disk layout of the session file.
type fileFormat struct {
	Values map[Key]string `json:"values"`
}

// FileStore keeps all keys in one JSON file, rewritten atomically on every
// mutation. Never logs values.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileStore returns a store backed by the file at path. The file and its
// directory are created on first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file location.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(_ context.Context, key Key) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}

	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (f *FileStore) Set(_ context.Context, key Key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		// A corrupt file must not block a fresh login.
		f.logger.Warn("sessionstore: discarding unreadable session file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)

		values = make(map[Key]string)
	}

	values[key] = value

	return f.save(values)
}

func (f *FileStore) Delete(_ context.Context, keys ...Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		f.logger.Warn("sessionstore: removing unreadable session file",
			slog.String("path", f.path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return fmt.Errorf("sessionstore: removing %s: %w", f.path, rmErr)
		}

		return nil
	}

	if len(values) == 0 {
		return nil
	}

	for _, k := range keys {
		delete(values, k)
	}

	return f.save(values)
}

func (f *FileStore) Close() error { return nil }

// load reads the session file. A missing file is an empty store.
func (f *FileStore) load() (map[Key]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[Key]string), nil
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading %s: %w", f.path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("sessionstore: decoding %s: %w", f.path, err)
	}

	if ff.Values == nil {
		ff.Values = make(map[Key]string)
	}

	return ff.Values, nil
}

// save writes the session file via temp file + rename with 0600 permissions.
func (f *FileStore) save(values map[Key]string) error {
	data, err := json.MarshalIndent(fileFormat{Values: values}, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("sessionstore: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("sessionstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionstore: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sessionstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sessionstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("sessionstore: renaming: %w", err)
	}

	success = true

	return nil
}
