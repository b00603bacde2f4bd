package fsync

import (
	"bufio"
	"errors"
	"strings"
)

var errFrameNotOpen = errors.New("response frame not open")

// ResponseWriter encodes response frames onto a buffered connection writer.
//
// A frame is opened with Begin, filled through Write and closed with End,
// which also flushes. The first transport error is sticky: every later call
// returns it without writing, and the session treats it as fatal.
//
// Thread safety: not safe for concurrent use. One writer per connection.
type ResponseWriter struct {
	w *bufio.Writer

	status Status
	open   bool
	n      int64
	err    error
}

// NewResponseWriter wraps w.
func NewResponseWriter(w *bufio.Writer) *ResponseWriter {
	return &ResponseWriter{w: w}
}

// Begin writes the start marker and the status line.
func (rw *ResponseWriter) Begin(status Status) error {
	if rw.err != nil {
		return rw.err
	}
	if rw.open {
		if err := rw.End(); err != nil {
			return err
		}
	}

	rw.status = status
	rw.open = true
	rw.write(StartMarker)
	rw.write([]byte(status))
	rw.write(lineCRLF)
	return rw.err
}

// Write appends body bytes to the open frame.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if rw.err != nil {
		return 0, rw.err
	}
	if !rw.open {
		return 0, errFrameNotOpen
	}
	n, err := rw.w.Write(b)
	rw.n += int64(n)
	if err != nil {
		rw.err = err
	}
	return n, err
}

// End writes the end marker and flushes the frame to the transport.
func (rw *ResponseWriter) End() error {
	if rw.err != nil {
		return rw.err
	}
	if !rw.open {
		return errFrameNotOpen
	}
	rw.open = false
	rw.write(EndMarker)
	return rw.Flush()
}

// Flush pushes buffered bytes to the transport without closing the frame.
func (rw *ResponseWriter) Flush() error {
	if rw.err != nil {
		return rw.err
	}
	if err := rw.w.Flush(); err != nil {
		rw.err = err
	}
	return rw.err
}

// WriteOK sends a complete OK frame. Lines are joined with CRLF.
func (rw *ResponseWriter) WriteOK(lines ...string) error {
	if err := rw.Begin(StatusOK); err != nil {
		return err
	}
	rw.write([]byte(strings.Join(lines, "\r\n")))
	return rw.End()
}

// WriteError sends a complete ERROR frame. If a frame is still open, as
// after a failure in the middle of a GET stream, it is closed first so the
// client sees two well-formed frames.
func (rw *ResponseWriter) WriteError(msg string) error {
	if err := rw.Begin(StatusError); err != nil {
		return err
	}
	rw.write([]byte(msg))
	return rw.End()
}

// Status returns the status of the most recent frame.
func (rw *ResponseWriter) Status() Status {
	return rw.status
}

// Open reports whether a frame has been begun but not ended.
func (rw *ResponseWriter) Open() bool {
	return rw.open
}

// Written returns the number of body bytes written since the last Reset.
func (rw *ResponseWriter) Written() int64 {
	return rw.n
}

// Err returns the sticky transport error, if any.
func (rw *ResponseWriter) Err() error {
	return rw.err
}

// Reset clears per-request state. The sticky error is kept.
func (rw *ResponseWriter) Reset() {
	rw.status = ""
	rw.open = false
	rw.n = 0
}

func (rw *ResponseWriter) write(b []byte) {
	if rw.err != nil {
		return
	}
	if _, err := rw.w.Write(b); err != nil {
		rw.err = err
	}
}
