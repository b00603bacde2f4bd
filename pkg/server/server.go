package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/adapter"
	"github.com/marmos91/fsyncd/pkg/registry"
)

// DefaultShutdownTimeout bounds the Stop() calls issued to adapters during
// shutdown unless SetShutdownTimeout changes it.
const DefaultShutdownTimeout = 30 * time.Second

// FsyncServer manages the lifecycle of protocol adapters that share one
// registry (store, sandbox root, change bus).
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown of all adapters
//
// Thread safety:
// FsyncServer is safe for concurrent use. Serve() may only be called once.
//
// Example usage:
//
//	srv := server.New(reg)
//	srv.AddAdapter(fsync.New(fsyncConfig, fsyncMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type FsyncServer struct {
	registry *registry.Registry

	// mu protects the adapters slice
	mu       sync.RWMutex
	adapters []adapter.Adapter

	shutdownTimeout time.Duration

	// served is set by the first Serve() call
	served atomic.Bool
}

// New creates a server sharing reg between all adapters.
//
// Panics if reg is nil (indicates programmer error).
func New(reg *registry.Registry) *FsyncServer {
	if reg == nil {
		panic("registry cannot be nil")
	}
	return &FsyncServer{registry: reg, shutdownTimeout: DefaultShutdownTimeout}
}

// SetShutdownTimeout changes how long shutdown waits for adapters to stop.
// Must be called before Serve().
func (s *FsyncServer) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// AddAdapter injects the registry into a and registers it.
//
// Returns an error if another adapter already serves the same protocol or
// a non-zero port.
//
// Panics if a is nil or Serve() has already been called.
func (s *FsyncServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetRegistry(s.registry)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On shutdown every adapter receives Stop() in reverse registration order and
// Serve waits for all of them to return.
//
// Returns:
//   - ctx.Err() when shutdown was triggered by the context
//   - the first adapter error otherwise
//
// Panics if called more than once.
func (s *FsyncServer) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		panic("Serve() has already been called on this server instance")
	}

	adapters := s.Adapters()
	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting fsyncd with %d adapter(s), root %s", len(adapters), s.registry.Root())

	errChan := make(chan adapterError, len(adapters))
	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			if err := a.Serve(ctx); err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped: %v", protocol, err)
				}
				return
			}
			if ctx.Err() == nil {
				errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	wg.Wait()
	logger.Info("fsyncd stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order. Errors are logged; the remaining adapters are still stopped.
func (s *FsyncServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adp.Protocol(), err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *FsyncServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Registry returns the shared registry.
func (s *FsyncServer) Registry() *registry.Registry {
	return s.registry
}
