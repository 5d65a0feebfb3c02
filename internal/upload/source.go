package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is a local file offered for upload. Open is called once per upload
// attempt.
type Source struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileSource describes the regular file at path.
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("upload: %w", err)
	}

	if !info.Mode().IsRegular() {
		return Source{}, fmt.Errorf("upload: %s is not a regular file", path)
	}

	return Source{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}
