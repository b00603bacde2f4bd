package config

import (
	"context"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/metrics"
	promMetrics "github.com/marmos91/fsyncd/pkg/metrics/prometheus"
)

// MetricsResult holds the metrics components built from the configuration.
// Server is nil when metrics are disabled; FsyncMetrics is never nil.
type MetricsResult struct {
	Server       *metrics.Server
	FsyncMetrics metrics.FsyncMetrics
}

// InitializeMetrics builds the metrics components. With metrics disabled the
// registry is left uninitialized and the adapter gets a no-op collector.
// health backs the /healthz endpoint and may be nil.
func InitializeMetrics(cfg *Config, health func(context.Context) error) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{FsyncMetrics: metrics.NewNoopFsyncMetrics()}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:       metrics.NewServer(metrics.ServerConfig{
			Port:   cfg.Server.Metrics.Port,
			Health: health,
		}),
		FsyncMetrics: promMetrics.NewFsyncMetrics(),
	}
}

// Run serves the metrics endpoint until ctx is cancelled. It returns
// immediately when metrics are disabled. Errors are logged.
func (m *MetricsResult) Run(ctx context.Context) {
	if m.Server == nil {
		return
	}
	if err := m.Server.Start(ctx); err != nil {
		logger.Error("Metrics server error: %v", err)
	}
}
