package handlers

import (
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
)

// List returns one "<kind>\t<name>" line per entry of the named directory,
// or of the working directory when no path is given. Entries are sorted by
// name.
func (h *Handler) List(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	dir := ctx.Session.Cwd
	if clientPath != "" {
		abs, err := h.resolve(ctx, clientPath)
		if err != nil {
			return h.fail(ctx, w, req.Command, clientPath, err)
		}
		dir = abs
	}

	entries, err := h.Store.ReadDir(ctx.Context, dir)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, string(e.Kind)+"\t"+e.Name)
	}
	return w.WriteOK(lines...)
}
