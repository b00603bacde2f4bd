package handlers

import (
	"io"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
)

// Get streams a file to the client.
//
// Response: OUT, the raw file bytes, end marker. Content is not escaped, so
// a file that itself contains the end marker cannot be told apart from the
// end of the frame by the client.
//
// If reading the file fails after OUT was sent, the OUT frame is closed and
// a separate ERROR frame follows.
func (h *Handler) Get(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)

	abs, err := h.resolve(ctx, clientPath)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	f, err := h.Store.Open(ctx.Context, abs)
	if err != nil {
		return h.fail(ctx, w, req.Command, clientPath, err)
	}
	defer f.Close()

	if err := w.Begin(fsync.StatusOut); err != nil {
		return err
	}

	buf := getCopyBuffer()
	defer putCopyBuffer(buf)

	if _, err := io.CopyBuffer(w, f, *buf); err != nil {
		if werr := w.Err(); werr != nil {
			return werr
		}
		logger.Warn("GET %s: failed to read file: %v", clientPath, err)
		return w.WriteError("Failed to get file: " + clientPath)
	}

	return w.End()
}
