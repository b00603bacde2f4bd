package config

import (
	"fmt"

	"github.com/marmos91/fsyncd/pkg/adapter"
	"github.com/marmos91/fsyncd/pkg/adapter/fsync"
	"github.com/marmos91/fsyncd/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete fsyncd configuration
//   - fsyncMetrics: Optional fsync metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: If no adapter is enabled
func CreateAdapters(cfg *Config, fsyncMetrics metrics.FsyncMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.Fsync.Enabled {
		adapters = append(adapters, fsync.New(cfg.Adapters.Fsync, fsyncMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
