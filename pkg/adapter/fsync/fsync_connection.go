package fsync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/marmos91/fsyncd/internal/logger"
	proto "github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/internal/protocol/fsync/handlers"
	"github.com/marmos91/fsyncd/internal/ratelimiter"
)

// errPeerGone is the cancellation cause of a SLEEP whose client went away.
var errPeerGone = errors.New("peer disconnected during SLEEP")

// FsyncConnection serves one client connection.
//
// Requests are processed strictly one at a time: read a request, dispatch
// it, write its response, repeat. The connection owns its Session, its
// buffered reader and writer, and its rate limiter; none of them are shared.
type FsyncConnection struct {
	server *FsyncAdapter
	conn   net.Conn

	io     *deadlineConn
	reader *bufio.Reader
	writer *proto.ResponseWriter

	session *handlers.Session
	limiter *ratelimiter.Limiter

	// idle is set while waiting for the first byte of a request, so that
	// shutdown can interrupt the wait without cutting a request short.
	idle atomic.Bool

	// resyncing is set after a malformed request until the next valid start
	// marker. Garbage seen while resyncing is dropped without a response.
	resyncing bool
}

// NewFsyncConnection wraps conn for serving.
func NewFsyncConnection(server *FsyncAdapter, conn net.Conn) *FsyncConnection {
	dc := &deadlineConn{Conn: conn, writeTimeout: server.config.Timeouts.Write}
	handler := server.registry.Handler()

	return &FsyncConnection{
		server:  server,
		conn:    conn,
		io:      dc,
		reader:  bufio.NewReaderSize(dc, server.config.BufferSize),
		writer:  proto.NewResponseWriter(bufio.NewWriterSize(dc, server.config.BufferSize)),
		session: handler.NewSession(conn.RemoteAddr().String()),
		limiter: ratelimiter.New(server.config.RateLimit.RequestsPerSecond, server.config.RateLimit.Burst),
	}
}

// Serve handles requests until the client quits or disconnects, a
// transport error occurs, or ctx is cancelled.
//
// A panic in a handler is recovered and closes only this connection.
func (c *FsyncConnection) Serve(ctx context.Context) {
	clientAddr := c.session.ClientAddr

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler from %s: %v", clientAddr, r)
		}
		_ = c.conn.Close()
	}()

	// Shutdown interrupts a connection waiting for its next request.
	stop := context.AfterFunc(ctx, func() {
		if c.idle.Load() {
			_ = c.conn.SetReadDeadline(time.Now())
		}
	})
	defer stop()

	logger.Debug("New connection from %s", clientAddr)

	for {
		if err := c.awaitRequest(ctx); err != nil {
			c.logClose(ctx, err)
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.logClose(ctx, err)
			return
		}

		req, err := proto.ReadRequest(c.reader)
		if err != nil {
			if perr, ok := proto.IsProtocolError(err); ok {
				if err := c.handleProtocolError(perr); err != nil {
					c.logClose(ctx, err)
					return
				}
				continue
			}
			c.logClose(ctx, err)
			return
		}
		if req.Skipped != nil {
			if err := c.handleProtocolError(req.Skipped); err != nil {
				c.logClose(ctx, err)
				return
			}
		}
		c.resyncing = false

		if err := c.handleRequest(ctx, req); err != nil {
			c.logClose(ctx, err)
			return
		}
	}
}

// awaitRequest blocks until the next request starts arriving, the idle
// timeout expires or shutdown begins. Reads of the request itself then run
// under the per-read timeout.
func (c *FsyncConnection) awaitRequest(ctx context.Context) error {
	c.idle.Store(true)
	c.io.setReadTimeout(0)
	if idle := c.server.config.Timeouts.Idle; idle > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return fmt.Errorf("set idle deadline: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.reader.Peek(1)
	c.idle.Store(false)
	if err != nil {
		return err
	}

	c.io.setReadTimeout(c.server.config.Timeouts.Read)
	return nil
}

// handleProtocolError answers a malformed request.
//
// One ERROR frame is sent per run of garbage: the first bad line answers,
// the following ones are dropped until a valid start marker shows up.
func (c *FsyncConnection) handleProtocolError(perr *proto.ProtocolError) error {
	c.server.metrics.RecordProtocolError(perr.Kind.String())

	if perr.Kind == proto.BadStartMarker && c.resyncing {
		logger.Debug("Discarding garbage from %s: %v", c.session.ClientAddr, perr)
		return nil
	}

	logger.Warn("Invalid request from %s: %v", c.session.ClientAddr, perr)

	// After a bad marker, or a request abandoned half way, the stream is
	// not on a frame boundary.
	c.resyncing = perr.Kind == proto.BadStartMarker || perr.Resync

	c.writer.Reset()
	return c.writer.WriteError(proto.MsgInvalidRequest)
}

// handleRequest dispatches one request and records its metrics.
func (c *FsyncConnection) handleRequest(ctx context.Context, req *proto.Request) error {
	name := req.Command.String()
	info := handlers.Lookup(req.Command)

	c.server.metrics.RecordRequestStart(name)
	defer c.server.metrics.RecordRequestEnd(name)

	c.writer.Reset()

	reqCtx := ctx
	var watch *peerWatch
	if info != nil && info.Blocking {
		watch = c.watchPeer(ctx)
		reqCtx = watch.ctx
	}

	start := time.Now()
	err := c.server.registry.Handler().Dispatch(&handlers.RequestContext{
		Context: reqCtx,
		Session: c.session,
	}, req, c.writer)

	if watch != nil {
		interrupted := watch.stop()
		c.recordSleep(err, interrupted, time.Since(start))
	}

	c.server.metrics.RecordRequest(name, string(c.writer.Status()), time.Since(start))
	switch {
	case req.Payload != nil:
		c.server.metrics.RecordBytesTransferred(name, "in", req.Payload.N())
	case req.Command == proto.CommandGet:
		c.server.metrics.RecordBytesTransferred(name, "out", c.writer.Written())
	}

	if errors.Is(err, handlers.ErrQuit) {
		return io.EOF
	}
	return err
}

func (c *FsyncConnection) recordSleep(err error, interrupted bool, d time.Duration) {
	outcome := "woken"
	switch {
	case err != nil:
		outcome = "abandoned"
	case interrupted:
		outcome = "cancelled"
	}
	c.server.metrics.RecordSleep(outcome, d)
}

// ============================================================================
// Peer watching during SLEEP
// ============================================================================

// peerWatch observes the connection while a blocking command runs. Its
// context is cancelled with handlers.ErrSleepInterrupted when the client
// sends data and with errPeerGone when the client disconnects.
type peerWatch struct {
	c       *FsyncConnection
	ctx     context.Context
	cancel  context.CancelCauseFunc
	done    chan struct{}
	stopped atomic.Bool
}

// watchPeer starts a goroutine peeking at the connection. Until stop returns
// the goroutine owns the reader; the session must not read in between.
func (c *FsyncConnection) watchPeer(parent context.Context) *peerWatch {
	ctx, cancel := context.WithCancelCause(parent)
	w := &peerWatch{c: c, ctx: ctx, cancel: cancel, done: make(chan struct{})}

	// No read deadline while waiting: SLEEP may legitimately last forever.
	c.io.setReadTimeout(0)

	go func() {
		defer close(w.done)
		_, err := c.reader.Peek(1)
		switch {
		case err == nil:
			cancel(handlers.ErrSleepInterrupted)
		case w.stopped.Load():
			// Woken by stop's deadline, not by the peer.
		default:
			cancel(fmt.Errorf("%w: %v", errPeerGone, err))
		}
	}()
	return w
}

// stop ends the watch and waits for the goroutine to let go of the reader.
// It reports whether the client sent data while the command was blocked.
func (w *peerWatch) stop() bool {
	w.stopped.Store(true)
	_ = w.c.conn.SetReadDeadline(time.Now())
	<-w.done
	w.cancel(nil)
	return errors.Is(context.Cause(w.ctx), handlers.ErrSleepInterrupted)
}

// ============================================================================
// Logging
// ============================================================================

func (c *FsyncConnection) logClose(ctx context.Context, err error) {
	clientAddr := c.session.ClientAddr

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Connection from %s closed by client", clientAddr)
	case ctx.Err() != nil:
		logger.Debug("Connection from %s closed due to server shutdown", clientAddr)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection from %s timed out: %v", clientAddr, err)
	case errors.Is(err, errPeerGone):
		logger.Debug("Connection from %s dropped: %v", clientAddr, err)
	default:
		logger.Info("Closing connection from %s: %v", clientAddr, err)
	}
}

// ============================================================================
// Deadlines
// ============================================================================

// deadlineConn refreshes the read or write deadline before every call, so
// a timeout bounds a stall rather than the length of a whole transfer.
//
// readTimeout is only changed by the connection goroutine while no reader
// goroutine is active.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// setReadTimeout switches per-read deadlines on (d > 0) or off. Turning
// them off clears the current deadline.
func (d *deadlineConn) setReadTimeout(t time.Duration) {
	d.readTimeout = t
	if t == 0 {
		_ = d.Conn.SetReadDeadline(time.Time{})
	}
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if d.readTimeout > 0 {
		_ = d.Conn.SetReadDeadline(time.Now().Add(d.readTimeout))
	}
	return d.Conn.Read(p)
}

func (d *deadlineConn) Write(p []byte) (int, error) {
	if d.writeTimeout > 0 {
		_ = d.Conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	}
	return d.Conn.Write(p)
}
