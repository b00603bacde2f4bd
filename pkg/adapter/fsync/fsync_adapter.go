package fsync

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/metrics"
	"github.com/marmos91/fsyncd/pkg/registry"
)

// FsyncAdapter implements the adapter.Adapter interface for the fsync
// protocol.
//
// Architecture:
// FsyncAdapter manages the listener (TCP, optionally wrapped in TLS) and the
// connection lifecycle. Each accepted connection is served by an
// FsyncConnection on its own goroutine. All connections share the handler,
// store, resolver and change bus held by the registry.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled: idle connections close, pending SLEEPs are
//     abandoned, in-flight requests finish
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called multiple times.
type FsyncAdapter struct {
	config FsyncConfig

	// registry provides the shared store, resolver, bus and handler
	registry *registry.Registry

	// metrics is never nil; a no-op implementation is used by default
	metrics metrics.FsyncMetrics

	// listener is set once Serve has bound. Guarded by mu.
	mu       sync.Mutex
	listener net.Listener

	// ready is closed once the listener is bound
	ready chan struct{}

	// activeConns tracks connection goroutines for graceful shutdown
	activeConns sync.WaitGroup

	shutdownOnce sync.Once

	// shutdown is closed by initiateShutdown(), monitored by Serve()
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits concurrent connections if MaxConnections > 0
	connSemaphore chan struct{}

	// shutdownCtx is passed to every connection and cancelled on shutdown
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// New creates a new FsyncAdapter.
//
// The adapter is created in a stopped state. Call SetRegistry() to inject
// the shared resources, then call Serve() to start accepting connections.
//
// Parameters:
//   - config: Server configuration; zero values are replaced by defaults
//   - fsyncMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails (indicates programmer error; pkg/config
// validates user supplied configuration before it gets here).
func New(config FsyncConfig, fsyncMetrics metrics.FsyncMetrics) *FsyncAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid fsync config: %v", err))
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("fsync connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("fsync connection limit: unlimited")
	}

	if fsyncMetrics == nil {
		fsyncMetrics = metrics.NewNoopFsyncMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &FsyncAdapter{
		config:         config,
		metrics:        fsyncMetrics,
		ready:          make(chan struct{}),
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// SetRegistry injects the shared registry.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (s *FsyncAdapter) SetRegistry(reg *registry.Registry) {
	s.registry = reg
	logger.Debug("fsync adapter serving root %s", reg.Root())
}

// Serve binds the listener and accepts connections until the context is
// cancelled or Stop() is called.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener or TLS material cannot be set up, or if the
//     shutdown timeout expired and connections were force-closed
//
// Thread safety:
// Serve() should only be called once per FsyncAdapter instance.
func (s *FsyncAdapter) Serve(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("fsync adapter has no registry; call SetRegistry() before Serve()")
	}

	listener, err := s.listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.ready)

	// Stop() may have run before the listener existed.
	select {
	case <-s.shutdown:
		_ = listener.Close()
	default:
	}

	logger.Info("fsync server listening on %s", listener.Addr())
	logger.Debug("fsync config: max_connections=%d buffer_size=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		s.config.MaxConnections, s.config.BufferSize,
		s.config.Timeouts.Read, s.config.Timeouts.Write, s.config.Timeouts.Idle)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("fsync shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting fsync connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := conn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, conn)
		s.registry.RecordSession(connAddr, s.Protocol(), time.Now())

		s.metrics.RecordConnectionAccepted()
		currentConns := s.connCount.Load()
		s.metrics.SetActiveConnections(currentConns)

		logger.Debug("fsync connection accepted from %s (active: %d)", connAddr, currentConns)

		c := NewFsyncConnection(s, conn)
		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.registry.RemoveSession(addr)

				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}

				s.metrics.RecordConnectionClosed()
				currentConns := s.connCount.Load()
				s.metrics.SetActiveConnections(currentConns)

				logger.Debug("fsync connection closed from %s (active: %d)", addr, currentConns)
			}()

			c.Serve(s.shutdownCtx)
		}(connAddr)
	}
}

// listen binds the configured address, wrapping the listener in TLS when
// certificate and key are configured.
func (s *FsyncAdapter) listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))

	var tlsConfig *tls.Config
	if s.config.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create fsync listener on %s: %w", addr, err)
	}

	if tlsConfig == nil {
		logger.Warn("Listening in insecure mode is not recommended!")
		return ln, nil
	}

	logger.Info("fsync TLS enabled (cert: %s)", s.config.TLS.CertFile)
	return tls.NewListener(ln, tlsConfig), nil
}

// initiateShutdown closes the listener and cancels shutdownCtx.
// Safe to call multiple times.
func (s *FsyncAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("fsync shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil {
				logger.Debug("Error closing fsync listener: %v", err)
			}
		}

		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections to finish, force-closing
// whatever is left after ShutdownTimeout.
func (s *FsyncAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("fsync graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	select {
	case <-s.connectionsDone():
		logger.Info("fsync graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("fsync shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()
		return fmt.Errorf("fsync shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes every tracked connection so blocked reads and
// writes fail and their goroutines exit.
func (s *FsyncAdapter) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

func (s *FsyncAdapter) connectionsDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

// Stop initiates graceful shutdown and waits for active connections until
// ctx is done.
//
// Returns:
//   - nil when all connections closed
//   - ctx.Err() if the context ended first; Serve() still force-closes the
//     remaining connections after ShutdownTimeout
func (s *FsyncAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	select {
	case <-s.connectionsDone():
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("fsync shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs the connection and SLEEP counts.
func (s *FsyncAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("fsync metrics: active_connections=%d sleeping=%d",
				s.connCount.Load(), s.registry.Bus().Len())
		}
	}
}

// GetActiveConnections returns the current number of active connections.
func (s *FsyncAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Ready is closed once the listener is bound.
func (s *FsyncAdapter) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener address, or nil before Serve has bound.
func (s *FsyncAdapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port, or the configured one before Serve has bound.
func (s *FsyncAdapter) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return s.config.Port
}

// Protocol returns "fsync".
func (s *FsyncAdapter) Protocol() string {
	return "fsync"
}
