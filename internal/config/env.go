package config

import (
	"log/slog"
	"os"
)

// Environment variable names for overrides.
const (
	EnvConfig  = "CLOUDVAULT_CONFIG"
	EnvServer  = "CLOUDVAULT_SERVER"
	EnvDataDir = "CLOUDVAULT_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // CLOUDVAULT_CONFIG: override config file path
	Server     string // CLOUDVAULT_SERVER: API base URL
	DataDir    string // CLOUDVAULT_DATA_DIR: session storage directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Server:     os.Getenv(EnvServer),
		DataDir:    os.Getenv(EnvDataDir),
	}

	if logger != nil {
		logger.Debug("environment overrides",
			slog.String("config", env.ConfigPath),
			slog.String("server", env.Server),
			slog.String("data_dir", env.DataDir),
		)
	}

	return env
}
