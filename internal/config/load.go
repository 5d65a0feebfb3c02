package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The result is validated and has every size and duration parsed.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.Server != "" {
		cfg.Server.BaseURL = env.Server
	}

	if env.DataDir != "" {
		cfg.Storage.DataDir = env.DataDir
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.Server != nil {
		cfg.Server.BaseURL = *cli.Server
	}

	if cli.DataDir != nil {
		cfg.Storage.DataDir = *cli.DataDir
	}

	// 5. Validate again: overrides may have introduced bad values.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	logger.Debug("config resolved",
		slog.String("path", cfgPath),
		slog.String("base_url", resolved.BaseURL),
		slog.String("session_backend", resolved.SessionBackend),
		slog.String("data_dir", resolved.DataDir),
	)

	return resolved, nil
}

// resolve converts a validated Config into typed values.
func resolve(cfg *Config) (*Resolved, error) {
	var errs []error

	dur := func(name, s string) time.Duration {
		d, err := time.ParseDuration(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}

		return d
	}

	size := func(name, s string, parse func(string) (int64, error)) int64 {
		n, err := parse(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}

		return n
	}

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	r := &Resolved{
		BaseURL:         cfg.Server.BaseURL,
		ShareBaseURL:    cfg.Server.ShareBaseURL,
		UserAgent:       cfg.Server.UserAgent,
		MetadataTimeout: dur("metadata_timeout", cfg.Server.MetadataTimeout),
		UploadTimeout:   dur("upload_timeout", cfg.Server.UploadTimeout),
		RefreshTimeout:  dur("refresh_timeout", cfg.Server.RefreshTimeout),
		MaxFileSize:     size("max_file_size", cfg.Transfers.MaxFileSize, ParseSize),
		MaxBatchFiles:   cfg.Transfers.MaxBatchFiles,
		AllowedTypes:    cfg.Transfers.AllowedExtensions,
		ParallelUploads: cfg.Transfers.ParallelUploads,
		SuccessLinger:   dur("success_linger", cfg.Transfers.SuccessLinger),
		BandwidthLimit:  size("bandwidth_limit", cfg.Transfers.BandwidthLimit, ParseBandwidth),
		SessionBackend:  cfg.Storage.SessionBackend,
		DataDir:         expandTilde(dataDir),
		LogLevel:        cfg.Logging.LogLevel,
		LogFormat:       cfg.Logging.LogFormat,
		MetricsTextfile: expandTilde(cfg.Metrics.Textfile),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return r, nil
}
