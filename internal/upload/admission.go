package upload

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Admission limits applied when no Options override them.
const (
	DefaultMaxFileSize   int64 = 10 * 1024 * 1024
	DefaultMaxBatchFiles       = 20
)

// Admission errors. Rejections wrap one of these.
var (
	ErrFileTooLarge     = errors.New("upload: file too large")
	ErrTooManyFiles     = errors.New("upload: too many files")
	ErrTypeNotAllowed   = errors.New("upload: file type not allowed")
	ErrInvalidName      = errors.New("upload: invalid file name")
	ErrInvalidSize      = errors.New("upload: invalid file size")
	ErrQuotaShortfall   = errors.New("upload: not enough storage space")
	ErrUnknownItem      = errors.New("upload: no such item")
	ErrItemNotRemovable = errors.New("upload: item cannot be removed in its current state")
)

// Rejection is one file refused at admission.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// AdmissionReport is the outcome of AddFiles. When BatchErr is set, Accepted
// is empty and nothing was enqueued.
type AdmissionReport struct {
	Accepted []Item
	Rejected []Rejection
	BatchErr error
}

// admit checks one file against the per-file rules. position is the file's
// index in the offered batch.
func (q *Queue) admit(src Source, position int) (string, *Rejection) {
	name := norm.NFC.String(strings.TrimSpace(src.Name))

	reject := func(err error, reason string) (string, *Rejection) {
		return "", &Rejection{Name: src.Name, Reason: reason, Err: err}
	}

	switch {
	case name == "" || name == "." || strings.ContainsAny(name, `/\`):
		return reject(ErrInvalidName, fmt.Sprintf("File %q has an invalid name.", src.Name))
	case src.Open == nil:
		return reject(ErrInvalidName, fmt.Sprintf("File %q cannot be read.", src.Name))
	case src.Size < 0:
		return reject(ErrInvalidSize, fmt.Sprintf("File %q has an invalid size.", src.Name))
	case position >= q.opts.MaxBatchFiles:
		return reject(ErrTooManyFiles, fmt.Sprintf("File %q was rejected: too many files. Maximum is %d per upload.", src.Name, q.opts.MaxBatchFiles))
	case src.Size > q.opts.MaxFileSize:
		return reject(ErrFileTooLarge, fmt.Sprintf("File %q is too large. Maximum size is %s.", src.Name, formatLimit(q.opts.MaxFileSize)))
	case !q.typeAllowed(name):
		return reject(ErrTypeNotAllowed, fmt.Sprintf("File %q type is not supported.", src.Name))
	}

	return name, nil
}

// typeAllowed matches name against the allowlist. Entries are extensions
// (".pdf"), exact MIME types ("text/plain"), or MIME wildcards ("image/*").
// An empty allowlist admits everything.
func (q *Queue) typeAllowed(name string) bool {
	if len(q.opts.AllowedTypes) == 0 {
		return true
	}

	ext := strings.ToLower(filepath.Ext(name))

	mediaType := ""
	if ext != "" {
		if full := mime.TypeByExtension(ext); full != "" {
			mediaType, _, _ = mime.ParseMediaType(full)
		}
	}

	for _, allowed := range q.opts.AllowedTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))

		switch {
		case strings.HasPrefix(allowed, "."):
			if ext == allowed {
				return true
			}
		case strings.HasSuffix(allowed, "/*"):
			if mediaType != "" && strings.HasPrefix(mediaType, strings.TrimSuffix(allowed, "*")) {
				return true
			}
		default:
			if mediaType == allowed {
				return true
			}
		}
	}

	return false
}

// formatLimit renders a byte limit as whole megabytes when exact ("10MB").
func formatLimit(n int64) string {
	const mb = 1024 * 1024
	if n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}

	return fmt.Sprintf("%d bytes", n)
}
