package config

import (
	"strings"
	"time"

	"github.com/marmos91/fsyncd/pkg/adapter/fsync"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend option defaults are filled in so generated files show them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyStorageDefaults sets storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Root == "" {
		cfg.Root = GetDefaultRoot()
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["file_mode"]; !ok {
		cfg.Filesystem["file_mode"] = 0o644
	}
	if _, ok := cfg.Filesystem["dir_mode"]; !ok {
		cfg.Filesystem["dir_mode"] = 0o755
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// fsync is the only adapter: a config that never mentions it (no port)
	// gets it enabled. An explicit "enabled: false" with a port is kept and
	// rejected by validation.
	if !cfg.Fsync.Enabled && cfg.Fsync.Port == 0 {
		cfg.Fsync.Enabled = true
	}

	applyFsyncDefaults(&cfg.Fsync)
}

// applyFsyncDefaults sets fsync adapter defaults.
func applyFsyncDefaults(cfg *fsync.FsyncConfig) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = fsync.DefaultPort
	}

	// MaxConnections defaults to 0 (unlimited)

	if cfg.BufferSize == 0 {
		cfg.BufferSize = 64 * 1024
	}
	if cfg.Timeouts.Read == 0 {
		cfg.Timeouts.Read = 5 * time.Minute
	}
	if cfg.Timeouts.Write == 0 {
		cfg.Timeouts.Write = 30 * time.Second
	}
	if cfg.Timeouts.Idle == 0 {
		cfg.Timeouts.Idle = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}

	// RateLimit defaults to 0 (unlimited), TLS to off
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		Adapters: AdaptersConfig{
			Fsync: fsync.FsyncConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
