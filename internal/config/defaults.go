package config

// Default values for configuration options. These are "layer 0" of the
// override chain and work without any config file.
const (
	defaultBaseURL         = "http://localhost:5000/api"
	defaultMetadataTimeout = "30s"
	defaultUploadTimeout   = "120s"
	defaultRefreshTimeout  = "10s"
	defaultMaxFileSize     = "10MiB"
	defaultMaxBatchFiles   = 20
	defaultParallelUploads = 3
	defaultSuccessLinger   = "3s"
	defaultBandwidthLimit  = "0"
	defaultSessionBackend  = "file"
	defaultLogLevel        = "warn"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server:    defaultServerConfig(),
		Transfers: defaultTransfersConfig(),
		Storage:   StorageConfig{SessionBackend: defaultSessionBackend},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		BaseURL:         defaultBaseURL,
		MetadataTimeout: defaultMetadataTimeout,
		UploadTimeout:   defaultUploadTimeout,
		RefreshTimeout:  defaultRefreshTimeout,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		MaxFileSize:     defaultMaxFileSize,
		MaxBatchFiles:   defaultMaxBatchFiles,
		ParallelUploads: defaultParallelUploads,
		SuccessLinger:   defaultSuccessLinger,
		BandwidthLimit:  defaultBandwidthLimit,
	}
}
