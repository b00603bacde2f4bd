// Package handlers implements the fsync protocol commands.
//
// Each command handler resolves its path arguments through the sandbox,
// performs the filesystem effect through the store and writes exactly one
// response (two when a streamed response fails half way). Mutating commands
// publish a change event once the effect has completed.
//
// Handlers report domain failures to the client and return nil. A non-nil
// return value means the connection can no longer be used: a transport
// error, a truncated upload, QUIT, or a SLEEP cut short by a disconnect.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/changebus"
	"github.com/marmos91/fsyncd/pkg/sandbox"
	"github.com/marmos91/fsyncd/pkg/store"
)

var (
	// ErrQuit is returned by the QUIT handler. The connection closes without
	// a response.
	ErrQuit = errors.New("client quit")

	// ErrSleepInterrupted is the cancellation cause the connection uses
	// when the client sends data while a SLEEP is pending. SLEEP then
	// answers "OK cancelled" and the session reads the new data as the next
	// request.
	ErrSleepInterrupted = errors.New("sleep interrupted by client")
)

// Handler holds the process wide collaborators shared by every session.
//
// Thread safety:
// A Handler is read-only after construction and shared by all connections.
type Handler struct {
	Store    store.Store
	Resolver *sandbox.Resolver
	Bus      *changebus.Bus
}

// Session is the per-connection state handlers may read and change.
// It is owned by one connection goroutine and never shared.
type Session struct {
	// Cwd is the absolute working directory, always inside the root.
	// Only CD changes it.
	Cwd string

	// ClientAddr is the remote address, for logging.
	ClientAddr string
}

// NewSession returns a session positioned at the root.
func (h *Handler) NewSession(clientAddr string) *Session {
	return &Session{Cwd: h.Resolver.Root(), ClientAddr: clientAddr}
}

// RequestContext is passed to every handler.
type RequestContext struct {
	// Context is cancelled when the server shuts down. For blocking
	// commands it is also cancelled when the client disconnects or sends
	// more data; context.Cause tells which.
	Context context.Context

	Session *Session
}

// resolve maps a client path against the session working directory.
func (h *Handler) resolve(ctx *RequestContext, clientPath string) (string, error) {
	return h.Resolver.Resolve(ctx.Session.Cwd, clientPath)
}

// resolveEntry resolves clientPath to the entry it names, without following
// a final symbolic link.
func (h *Handler) resolveEntry(ctx *RequestContext, clientPath string) (string, error) {
	return h.Resolver.ResolveEntry(ctx.Session.Cwd, clientPath)
}

// publish announces a completed change.
func (h *Handler) publish(path string, kind changebus.Kind) {
	n := h.Bus.Publish(changebus.Event{Path: path, Kind: kind})
	if n > 0 {
		logger.Debug("Change %s %s woke %d waiter(s)", kind, h.Resolver.Rel(path), n)
	}
}

// fail reports err to the client as an ERROR frame. The returned error is
// non-nil only if the frame could not be written.
func (h *Handler) fail(ctx *RequestContext, w *fsync.ResponseWriter, cmd fsync.Command, clientPath string, err error) error {
	msg := ErrorMessage(err, clientPath)
	logger.Debug("%s %q from %s failed: %v", cmd, clientPath, ctx.Session.ClientAddr, err)
	return w.WriteError(msg)
}

// ErrorMessage renders err as the body of an ERROR response. Server side
// absolute paths are never included; clientPath is appended instead.
func ErrorMessage(err error, clientPath string) string {
	msg := "I/O error"

	var perr *sandbox.PathError
	var serr *store.StoreError
	switch {
	case errors.As(err, &perr):
		switch perr.Kind {
		case sandbox.Escape:
			msg = "Path escapes root"
		default:
			msg = "Malformed path"
		}
	case errors.As(err, &serr):
		msg = storeMessage(serr)
	case errors.Is(err, errRemoveRoot):
		msg = "Cannot remove root directory"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		msg = "Server shutting down"
	}

	if clientPath == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, clientPath)
}

func storeMessage(serr *store.StoreError) string {
	switch serr.Code {
	case store.ErrNotFound:
		if serr.Message == store.ErrNotFound.String() {
			return "Not found"
		}
		return "Parent directory does not exist"
	case store.ErrAlreadyExists:
		return "Already exists"
	case store.ErrNotEmpty:
		return "Directory not empty"
	case store.ErrIsDirectory:
		return "Is a directory"
	case store.ErrNotDirectory:
		return "Not a directory"
	case store.ErrPermissionDenied:
		return "Permission denied"
	default:
		return "I/O error"
	}
}

var errRemoveRoot = errors.New("cannot remove root directory")
