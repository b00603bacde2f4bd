package handlers

import (
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/store"
)

// Cd changes the session working directory. The session is left untouched
// unless the target exists and is a directory.
func (h *Handler) Cd(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	abs, err := h.resolve(ctx, clientPath)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	info, err := h.Store.Stat(ctx.Context, abs)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}
	if !info.IsDir() {
		return h.fail(ctx, w, req.Command, clientPath,
			&store.StoreError{Code: store.ErrNotDirectory, Message: "not a directory", Path: abs})
	}

	ctx.Session.Cwd = abs
	return w.WriteOK()
}

// Pwd returns the working directory as the client sees it.
func (h *Handler) Pwd(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	return w.WriteOK(h.Resolver.Rel(ctx.Session.Cwd))
}

// Quit ends the session. Nothing is written.
func (h *Handler) Quit(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	return ErrQuit
}
