package handlers

import (
	"fmt"
	"time"

	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/store"
)

// Stat returns one metadata line:
//
//	kind=<file|dir> size=<bytes> modified=<RFC 3339, UTC>
func (h *Handler) Stat(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	abs, err := h.resolve(ctx, clientPath)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	info, err := h.Store.Stat(ctx.Context, abs)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	return w.WriteOK(FormatStat(info))
}

// FormatStat renders the STAT response line for info.
func FormatStat(info *store.FileInfo) string {
	return fmt.Sprintf("kind=%s size=%d modified=%s",
		info.Kind, info.Size, info.ModTime.UTC().Format(time.RFC3339))
}
