package fsync

import (
	"errors"
	"fmt"
	"io"
)

// ErrorKind classifies framing failures.
type ErrorKind int

const (
	// BadStartMarker: the bytes at a frame boundary are not the start marker.
	BadStartMarker ErrorKind = iota

	// UnknownCommand: the command token matches no protocol command.
	UnknownCommand

	// BadArguments: the number of argument lines does not fit the command.
	BadArguments

	// StreamTruncated: the transport ended before the frame was complete.
	StreamTruncated
)

func (k ErrorKind) String() string {
	switch k {
	case BadStartMarker:
		return "bad start marker"
	case UnknownCommand:
		return "unknown command"
	case BadArguments:
		return "bad arguments"
	case StreamTruncated:
		return "stream truncated"
	default:
		return "protocol error"
	}
}

// ProtocolError reports malformed framing.
//
// Only StreamTruncated is fatal to a connection. For the other kinds the
// session answers with an ERROR frame and keeps serving; when Resync is set
// the rest of the offending request is still in the stream and the session
// must skip ahead to the next start marker.
type ProtocolError struct {
	Kind ErrorKind

	// Line is the offending line or token, kept for logging.
	Line string

	// Resync is true when the end of the offending request was not reached.
	Resync bool

	// Recovered is true when a start marker was found right after the
	// offending line and consumed.
	Recovered bool

	// Err is the underlying cause, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	msg := e.Kind.String()
	if e.Line != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Line)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the connection cannot continue after this error.
func (e *ProtocolError) Fatal() bool {
	return e.Kind == StreamTruncated
}

// IsProtocolError reports whether err is a non-fatal framing error and
// returns it.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) && !perr.Fatal() {
		return perr, true
	}
	return nil, false
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ProtocolError{Kind: StreamTruncated, Err: io.ErrUnexpectedEOF}
	}
	return err
}

// maxLoggedLine bounds the size of a line kept in a ProtocolError.
const maxLoggedLine = 64

func loggedLine(line []byte) string {
	if len(line) > maxLoggedLine {
		line = line[:maxLoggedLine]
	}
	return string(line)
}
