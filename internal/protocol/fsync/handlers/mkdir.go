package handlers

import (
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/changebus"
)

// Mkdir creates one directory. Parents are never created implicitly.
// Publishes Created.
func (h *Handler) Mkdir(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	abs, err := h.resolve(ctx, clientPath)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	if err := h.Store.Mkdir(ctx.Context, abs); err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	h.publish(abs, changebus.Created)
	return w.WriteOK()
}
