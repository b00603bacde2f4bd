package handlers

import (
	"io"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/internal/protocol/fsync"
	"github.com/marmos91/fsyncd/pkg/changebus"
	"github.com/marmos91/fsyncd/pkg/store"
)

// Put stores the request payload in a file, creating or truncating it.
//
// The target is resolved and opened before anything is acknowledged, so the
// common failures (parent missing, target is a directory, escape) produce a
// single ERROR frame. Once ACK has been sent the payload is streamed to the
// file and the frame is closed with the end marker. A write failure after
// ACK keeps consuming the payload to stay in sync, closes the ACK frame and
// sends an ERROR frame.
//
// Publishes Created or Modified on success.
func (h *Handler) Put(ctx *RequestContext, req *fsync.Request, w *fsync.ResponseWriter) error {
	clientPath := req.Arg(0)
	payload := req.Payload

	reject := func(err error) error {
		if derr := payload.Drain(); derr != nil {
			return derr
		}
		return h.fail(ctx, w, req.Command, clientPath, err)
	}

	abs, err := h.resolve(ctx, clientPath)
	if err != nil {
		return reject(err)
	}

	kind := changebus.Created
	if info, err := h.Store.Stat(ctx.Context, abs); err == nil {
		if info.IsDir() {
			return reject(&store.StoreError{Code: store.ErrIsDirectory, Message: "is a directory", Path: abs})
		}
		kind = changebus.Modified
	}

	f, err := h.Store.Create(ctx.Context, abs)
	if err != nil {
		return reject(err)
	}

	if err := w.Begin(fsync.StatusAck); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	writeErr := copyPayload(f, payload)
	closeErr := f.Close()

	if !payload.Done() {
		// The payload itself failed: truncated stream or transport error.
		if writeErr == nil {
			writeErr = io.ErrUnexpectedEOF
		}
		return writeErr
	}

	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		logger.Warn("PUT %s: failed to write file: %v", clientPath, writeErr)
		return w.WriteError("Failed to put file: " + clientPath)
	}

	logger.Debug("PUT %s: stored %d bytes", clientPath, payload.N())
	h.publish(abs, kind)
	return w.End()
}

// copyPayload moves the payload into dst. It always reads the payload to its
// end marker; after a write error the remaining bytes are discarded. The
// returned error is the read error if the payload failed, else the first
// write error.
func copyPayload(dst io.Writer, payload *fsync.PayloadReader) error {
	buf := getCopyBuffer()
	defer putCopyBuffer(buf)

	var writeErr error
	for {
		n, err := payload.Read(*buf)
		if n > 0 && writeErr == nil {
			_, writeErr = dst.Write((*buf)[:n])
		}
		if err == io.EOF {
			return writeErr
		}
		if err != nil {
			return err
		}
	}
}
