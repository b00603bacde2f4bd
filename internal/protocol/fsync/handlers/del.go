package handlers

import (
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/changebus"
)

// Del removes a file or an empty directory. Publishes Removed.
func (h *Handler) Del(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	abs, err := h.resolveEntry(ctx, clientPath)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}
	if abs == h.Resolver.Root() {
		return h.fail(ctx, w, req.Command, clientPath, errRemoveRoot)
	}

	if err := h.Store.Remove(ctx.Context, abs); err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	h.publish(abs, changebus.Removed)
	return w.WriteOK()
}
