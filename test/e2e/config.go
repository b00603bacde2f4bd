package e2e

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/fsyncd/pkg/config"
)

// StorageType represents the storage backend under test
type StorageType string

const (
	StorageMemory     StorageType = "memory"
	StorageFilesystem StorageType = "filesystem"
)

// TestConfig holds the configuration for a test run
type TestConfig struct {
	Name    string
	Storage StorageType

	// Watch enables the external change watcher (filesystem only)
	Watch bool
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	if tc.Watch {
		return string(tc.Storage) + "+watch"
	}
	return string(tc.Storage)
}

// Build turns the test configuration into a complete server configuration
// listening on a free loopback port.
func (tc *TestConfig) Build(t testing.TB) *config.Config {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = "ERROR"
	cfg.Storage.Type = string(tc.Storage)
	cfg.Watch.Enabled = tc.Watch

	switch tc.Storage {
	case StorageMemory:
		cfg.Storage.Root = "/srv/fsync"
	case StorageFilesystem:
		cfg.Storage.Root = filepath.Join(t.TempDir(), "root")
	}

	fs := &cfg.Adapters.Fsync
	fs.Address = "127.0.0.1"
	fs.Port = 0
	fs.ShutdownTimeout = 2 * time.Second
	fs.MetricsLogInterval = time.Hour

	return cfg
}

// AllConfigurations returns all test configurations to run
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{
			Name:    "memory",
			Storage: StorageMemory,
		},
		{
			Name:    "filesystem",
			Storage: StorageFilesystem,
		},
	}
}
