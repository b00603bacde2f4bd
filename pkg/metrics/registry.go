// Package metrics defines the metrics interfaces of fsyncd and owns the
// Prometheus registry they report to.
//
// Metrics are optional. Until InitRegistry is called every constructor hands
// out a no-op implementation:
//
//	metrics.InitRegistry()
//	m := prometheus.NewFsyncMetrics() // nil when the registry is off
//	adapter := fsync.New(cfg, m)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the process wide registry, preloaded with the Go
// runtime and process collectors. Later calls are no-ops.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
