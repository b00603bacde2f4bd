package fsync

import (
	"fmt"
	"time"

	proto "github.com/marmos91/fsyncd/internal/protocol/fsync"
)

// DefaultPort is the port the fsync protocol listens on unless configured.
const DefaultPort = 49152

// FsyncConfig holds configuration parameters for the fsync server.
//
// Default values (applied by New if zero):
//   - Address: "" (all interfaces)
//   - MaxConnections: 0 (unlimited)
//   - BufferSize: 64KiB
//   - Timeouts.Read: 5m, Timeouts.Write: 30s, Timeouts.Idle: 5m
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m
//
// Port 0 binds a free port; pkg/config fills in DefaultPort for real
// deployments.
type FsyncConfig struct {
	// Enabled controls whether the fsync adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the interface to bind. Empty binds all interfaces.
	Address string `mapstructure:"address" yaml:"address" validate:"omitempty,ip|hostname"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// MaxConnections limits concurrent client connections. When reached,
	// the accept loop waits until a connection closes. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// BufferSize is the size of the per-connection read and write buffers.
	// It also bounds the length of a request line.
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size" validate:"omitempty,min=256"`

	// Timeouts bound the time spent waiting on a client.
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// ShutdownTimeout is the maximum duration to wait for active
	// connections during graceful shutdown before they are force-closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	// MetricsLogInterval is the interval at which connection counts are
	// logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`

	// RateLimit throttles each connection's request rate.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`

	// TLS enables TLS when both files are set. Otherwise the server listens
	// in plaintext and logs a warning.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// TimeoutsConfig groups the connection timeouts. Zero disables a timeout.
type TimeoutsConfig struct {
	// Read bounds each read while a request is being received, payload
	// included. It does not apply while a SLEEP is pending.
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write bounds each write of a response.
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Idle bounds the wait for the first byte of the next request.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" validate:"min=0"`
}

// RateLimitConfig configures the per-connection token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" yaml:"burst" validate:"min=0"`
}

// TLSConfig names the PEM encoded certificate and key.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file" validate:"required_with=CertFile"`
}

// Enabled reports whether TLS material is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// applyDefaults fills in zero values.
func (c *FsyncConfig) applyDefaults() {
	// Enabled and Port defaults live in pkg/config so explicit values from
	// configuration files survive.
	if c.BufferSize == 0 {
		c.BufferSize = proto.DefaultBufferSize
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 5 * time.Minute
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks the configuration after defaults have been applied.
func (c *FsyncConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if c.BufferSize < proto.MinBufferSize {
		return fmt.Errorf("invalid BufferSize %d: must be >= %d", c.BufferSize, proto.MinBufferSize)
	}
	if c.Timeouts.Read < 0 || c.Timeouts.Write < 0 || c.Timeouts.Idle < 0 {
		return fmt.Errorf("invalid timeouts %+v: must be >= 0", c.Timeouts)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("invalid rate limit %+v: must be >= 0", c.RateLimit)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	return nil
}
