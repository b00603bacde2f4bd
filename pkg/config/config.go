package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/fsyncd/pkg/adapter/fsync"
)

// Config represents the complete fsyncd configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Storage backend selection and the served root directory
//   - The external change watcher
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (FSYNC_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Storage Configuration Pattern:
// Each backend defines its own option set. The Storage section contains
// type-specific maps (storage.filesystem, storage.memory) and only the map
// matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage selects the backend and the root directory served to clients
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Watch controls publication of changes made outside the protocol
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	// Enabled starts the /metrics endpoint and Prometheus collectors
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// StorageConfig specifies the storage backend.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific option map is used.
type StorageConfig struct {
	// Type specifies which backend to use
	// Valid values: filesystem, memory
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory"`

	// Root is the directory served to clients. Clients can never reach
	// anything outside of it.
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// Filesystem contains filesystem-specific options
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory contains memory-specific options
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`
}

// WatchConfig controls the external change watcher.
type WatchConfig struct {
	// Enabled publishes changes made directly on disk to sleeping clients.
	// Requires the filesystem backend.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// Fsync contains the fsync protocol configuration.
	// Uses the fsync.FsyncConfig type directly to avoid duplication.
	Fsync fsync.FsyncConfig `mapstructure:"fsync" yaml:"fsync"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (FSYNC_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the FSYNC_ prefix and underscores
	// Example: FSYNC_ADAPTERS_FSYNC_PORT=7000
	v.SetEnvPrefix("FSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/fsync/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvs registers every leaf key of t with viper. AutomaticEnv alone only
// consults the environment for keys viper already knows about, so without
// this an override for a key absent from the file would be ignored by
// Unmarshal.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		switch field.Type.Kind() {
		case reflect.Struct:
			bindEnvs(v, field.Type, key)
		case reflect.Map:
			// Backend option maps have no fixed schema.
		default:
			_ = v.BindEnv(key)
		}
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// A missing file is acceptable: defaults apply
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "fsync")
}

// getDataDir returns the data directory path, following the same lookup as
// getConfigDir with XDG_DATA_HOME and ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "fsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "fsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetDefaultRoot returns the directory served when storage.root is unset.
func GetDefaultRoot() string {
	return filepath.Join(getDataDir(), "root")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
