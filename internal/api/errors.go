// Package api is the HTTP transport for the file-storage service. It injects
// bearer tokens, decodes the service's {success, data, message} envelope,
// classifies failures into sentinel errors, and recovers from expired access
// tokens with a single shared refresh.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, api.ErrUnauthorized) to check.
var (
	ErrBadRequest         = errors.New("api: bad request")
	ErrUnauthorized       = errors.New("api: unauthorized")
	ErrForbidden          = errors.New("api: forbidden")
	ErrNotFound           = errors.New("api: not found")
	ErrConflict           = errors.New("api: conflict")
	ErrPayloadTooLarge    = errors.New("api: payload too large")
	ErrThrottled          = errors.New("api: throttled")
	ErrServerError        = errors.New("api: server error")
	ErrServiceUnavailable = errors.New("api: service unavailable")
	// ErrRejected marks a 2xx response whose envelope reported success=false.
	ErrRejected = errors.New("api: request rejected")
)

// Domain errors recognized from the server's message text. They are reported
// alongside the status sentinel, so both errors.Is checks succeed.
var (
	ErrQuotaExceeded        = errors.New("api: storage quota exceeded")
	ErrStorageMisconfigured = errors.New("api: storage not configured")
	ErrFileNotFound         = errors.New("api: file not found in storage")
	ErrStorageAccessDenied  = errors.New("api: storage access denied")
	ErrStorageService       = errors.New("api: storage service error")
)

// Client-side failures that never reached the server.
var (
	ErrNoRefreshToken = errors.New("api: no refresh token")
	ErrRefreshFailed  = errors.New("api: token refresh failed")
	ErrSessionChanged = errors.New("api: session changed during refresh")
	ErrMockDownload   = errors.New("api: download url points at mock storage")
)

// APIError wraps a status sentinel with the HTTP status code, the server's
// message, and an optional domain sentinel.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // status sentinel, for errors.Is()
	Domain     error // domain sentinel or nil
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	if e.RequestID != "" {
		return fmt.Sprintf("api: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	if e.Domain != nil {
		errs = append(errs, e.Domain)
	}

	return errs
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		if code >= http.StatusMultipleChoices {
			return ErrRejected
		}

		return nil
	}
}

// domainMarkers pairs server message fragments with domain sentinels.
// Matched case-insensitively, first match wins.
var domainMarkers = []struct {
	fragment string
	err      error
}{
	{"s3 storage is not configured", ErrStorageMisconfigured},
	{"file not found in storage", ErrFileNotFound},
	{"access denied to file storage", ErrStorageAccessDenied},
	{"storage service error", ErrStorageService},
	{"quota", ErrQuotaExceeded},
}

// classifyMessage recognizes domain failures in a server message.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	for _, m := range domainMarkers {
		if strings.Contains(lower, m.fragment) {
			return m.err
		}
	}

	return nil
}

// Describe renders err as a sentence suitable for an end user. Unknown
// errors fall back to the server message, then to err.Error().
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMockDownload):
		return "File storage service is not properly configured. Please contact administrator."
	case errors.Is(err, ErrStorageMisconfigured):
		return "File storage is not properly configured. Please contact administrator."
	case errors.Is(err, ErrFileNotFound):
		return "File not found in storage. It may have been deleted or moved."
	case errors.Is(err, ErrStorageAccessDenied):
		return "Storage access error. Please contact administrator."
	case errors.Is(err, ErrStorageService):
		return "Storage service error. Please try again or contact administrator."
	case errors.Is(err, ErrQuotaExceeded):
		return "Storage quota exceeded. Free up space and try again."
	case errors.Is(err, ErrPayloadTooLarge):
		return "File too large or insufficient storage quota"
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please log in again."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return err.Error()
}
