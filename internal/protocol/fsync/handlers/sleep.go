package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/changebus"
)

// Sleep blocks until another client changes the watched path (or anything,
// when no path is given) and answers "OK <kind> <path>". A path naming a
// symbolic link watches the link, not its target.
//
// The wait ends early when the request context is cancelled:
//   - cause ErrSleepInterrupted (client sent data): answer "OK cancelled"
//   - any other cause (disconnect, shutdown): return the cause, no response
//
// The subscription is always removed from the bus before Sleep returns.
func (h *Handler) Sleep(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	scope := ""
	if clientPath != "" {
		abs, err := h.resolveEntry(ctx, clientPath)
		if err != nil {
			return h.fail(ctx, w, req.Command, clientPath, err)
		}
		scope = abs
	}

	sub := h.Bus.Subscribe(scope)
	logger.Debug("SLEEP from %s waiting on %q", ctx.Session.ClientAddr, h.Resolver.Rel(scope))

	select {
	case ev := <-sub.C():
		return w.WriteOK(h.describe(ev))

	case <-ctx.Context.Done():
		cause := context.Cause(ctx.Context)

		var ev *changebus.Event
		if !h.Bus.Cancel(sub) {
			// Delivered concurrently with the cancellation.
			e := <-sub.C()
			ev = &e
		}

		if !errors.Is(cause, ErrSleepInterrupted) {
			logger.Debug("SLEEP from %s abandoned: %v", ctx.Session.ClientAddr, cause)
			return cause
		}
		if ev != nil {
			return w.WriteOK(h.describe(*ev))
		}
		return w.WriteOK("cancelled")
	}
}

func (h *Handler) describe(ev changebus.Event) string {
	return fmt.Sprintf("%s %s", ev.Kind, h.Resolver.Rel(ev.Path))
}
