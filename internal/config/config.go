// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudvault. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Sizes and durations are kept as the strings the user wrote; Resolve
// parses them.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Transfers TransfersConfig `toml:"transfers"`
	Storage   StorageConfig   `toml:"storage"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// ServerConfig locates the remote API and bounds each request.
type ServerConfig struct {
	BaseURL         string `toml:"base_url"`
	ShareBaseURL    string `toml:"share_base_url"`
	MetadataTimeout string `toml:"metadata_timeout"`
	UploadTimeout   string `toml:"upload_timeout"`
	RefreshTimeout  string `toml:"refresh_timeout"`
	UserAgent       string `toml:"user_agent"`
}

// TransfersConfig controls upload admission and concurrency.
type TransfersConfig struct {
	MaxFileSize       string   `toml:"max_file_size"`
	MaxBatchFiles     int      `toml:"max_batch_files"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	ParallelUploads   int      `toml:"parallel_uploads"`
	SuccessLinger     string   `toml:"success_linger"`
	BandwidthLimit    string   `toml:"bandwidth_limit"`
}

// StorageConfig selects where the session is persisted.
type StorageConfig struct {
	SessionBackend string `toml:"session_backend"`
	DataDir        string `toml:"data_dir"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the optional Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Server     *string // --server flag
	DataDir    *string // --data-dir flag
}

// Resolved is the effective configuration after every layer has been
// applied, with sizes and durations parsed.
type Resolved struct {
	ConfigPath string `json:"configPath"` // file that was read, or the default path when absent

	BaseURL         string        `json:"baseUrl"`
	ShareBaseURL    string        `json:"shareBaseUrl"`
	UserAgent       string        `json:"userAgent"`
	MetadataTimeout time.Duration `json:"metadataTimeout"`
	UploadTimeout   time.Duration `json:"uploadTimeout"`
	RefreshTimeout  time.Duration `json:"refreshTimeout"`

	MaxFileSize     int64         `json:"maxFileSize"`
	MaxBatchFiles   int           `json:"maxBatchFiles"`
	AllowedTypes    []string      `json:"allowedTypes"`
	ParallelUploads int           `json:"parallelUploads"`
	SuccessLinger   time.Duration `json:"successLinger"`
	BandwidthLimit  int64         `json:"bandwidthLimit"` // bytes per second, 0 = unlimited

	SessionBackend string `json:"sessionBackend"`
	DataDir        string `json:"dataDir"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`

	MetricsTextfile string `json:"metricsTextfile"`
}
