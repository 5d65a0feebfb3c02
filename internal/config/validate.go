package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minBatchFiles      = 1
	maxBatchFiles      = 100
	minParallelUploads = 1
	maxParallelUploads = 16
	minRequestTimeout  = 1 * time.Second
	maxSuccessLinger   = 5 * time.Minute
)

var (
	validSessionBackends = []string{"file", "sqlite", "memory"}
	validLogLevels       = []string{"debug", "info", "warn", "error"}
	validLogFormats      = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if err := validateURL(s.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}

	if s.ShareBaseURL != "" {
		if err := validateURL(s.ShareBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("share_base_url: %w", err))
		}
	}

	errs = append(errs, validateTimeout("metadata_timeout", s.MetadataTimeout)...)
	errs = append(errs, validateTimeout("upload_timeout", s.UploadTimeout)...)
	errs = append(errs, validateTimeout("refresh_timeout", s.RefreshTimeout)...)

	return errs
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}

func validateTimeout(name, s string) []error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, s, err)}
	}

	if d < minRequestTimeout {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", name, minRequestTimeout, s)}
	}

	return nil
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if n, err := ParseSize(t.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("max_file_size: %w", err))
	} else if n <= 0 {
		errs = append(errs, fmt.Errorf("max_file_size: must be positive, got %q", t.MaxFileSize))
	}

	if t.MaxBatchFiles < minBatchFiles || t.MaxBatchFiles > maxBatchFiles {
		errs = append(errs, fmt.Errorf("max_batch_files: must be between %d and %d, got %d",
			minBatchFiles, maxBatchFiles, t.MaxBatchFiles))
	}

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	for _, ext := range t.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && !strings.Contains(ext, "/") {
			errs = append(errs, fmt.Errorf(
				"allowed_extensions: %q must be an extension (\".pdf\") or a MIME type (\"image/*\")", ext))
		}
	}

	if d, err := time.ParseDuration(t.SuccessLinger); err != nil {
		errs = append(errs, fmt.Errorf("success_linger: invalid duration %q: %w", t.SuccessLinger, err))
	} else if d < 0 || d > maxSuccessLinger {
		errs = append(errs, fmt.Errorf("success_linger: must be between 0s and %s, got %s", maxSuccessLinger, t.SuccessLinger))
	}

	if _, err := ParseBandwidth(t.BandwidthLimit); err != nil {
		errs = append(errs, fmt.Errorf("bandwidth_limit: %w", err))
	}

	return errs
}

func validateStorage(s *StorageConfig) []error {
	if !slices.Contains(validSessionBackends, s.SessionBackend) {
		return []error{fmt.Errorf("session_backend: must be one of %s, got %q",
			strings.Join(validSessionBackends, ", "), s.SessionBackend)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateMetrics(m *MetricsConfig) []error {
	if m.Textfile != "" && filepath.Ext(m.Textfile) != ".prom" {
		return []error{fmt.Errorf("textfile: must end in .prom, got %q", m.Textfile)}
	}

	return nil
}
