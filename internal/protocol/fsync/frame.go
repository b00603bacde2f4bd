package fsync

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Request is one parsed request frame.
type Request struct {
	// Command is the parsed command. CommandUnknown never reaches a handler.
	Command Command

	// Args holds the argument lines with their line endings removed.
	Args []string

	// Payload streams the PUT payload. Nil for every other command.
	Payload *PayloadReader

	// Skipped reports garbage found right before the start marker, if any.
	Skipped *ProtocolError
}

// Arg returns the i-th argument, or "" if it is absent.
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

// errLineTooLong is returned by readLine after the oversized line has been
// discarded from the stream.
var errLineTooLong = errors.New("line exceeds buffer size")

// readLine returns the next '\n' terminated line including its terminator.
//
// The returned slice aliases the reader's buffer and is only valid until the
// next read. A line longer than the buffer is consumed and reported as
// errLineTooLong. A clean EOF before any byte is returned as io.EOF; EOF in
// the middle of a line is io.ErrUnexpectedEOF.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadSlice('\n')
	switch {
	case err == nil:
		return line, nil
	case errors.Is(err, bufio.ErrBufferFull):
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return nil, unexpectedEOF(err)
		}
		return nil, errLineTooLong
	case errors.Is(err, io.EOF) && len(line) == 0:
		return nil, io.EOF
	default:
		return nil, unexpectedEOF(err)
	}
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadStartMarker consumes one start marker.
//
// The marker is read one line at a time so a garbage line is consumed on its
// own and the reader is left at the next line. A blank line where the FSYNC
// tag was expected is taken as the beginning of a new marker, so a session
// skipping garbage never steps over a real marker. Returns io.EOF if the
// stream ends cleanly before the first byte.
//
// Garbage ending in CRLF directly followed by the FSYNC tag shares its line
// ending with the marker. The marker is then consumed and a BadStartMarker
// error with Recovered set reports the skipped garbage.
func ReadStartMarker(r *bufio.Reader) error {
	line, err := readLine(r)
	if err != nil {
		return startMarkerError(err, true)
	}

	for {
		if !bytes.Equal(line, lineCRLF) {
			perr := &ProtocolError{Kind: BadStartMarker, Line: loggedLine(line)}
			if bytes.HasSuffix(line, lineCRLF) && startTagFollows(r) {
				_, _ = r.Discard(len(lineStart))
				perr.Recovered = true
			}
			return perr
		}

		line, err = readLine(r)
		if err != nil {
			return startMarkerError(err, false)
		}
		if bytes.Equal(line, lineStart) {
			return nil
		}
	}
}

// startTagFollows reports whether the next line is the FSYNC tag. It only
// waits for more input when the bytes already buffered begin the tag, so a
// lone garbage line is answered without blocking.
func startTagFollows(r *bufio.Reader) bool {
	n := min(r.Buffered(), len(lineStart))
	if n == 0 {
		return false
	}
	head, _ := r.Peek(n)
	if !bytes.HasPrefix(lineStart, head) {
		return false
	}
	next, _ := r.Peek(len(lineStart))
	return bytes.Equal(next, lineStart)
}

func startMarkerError(err error, atBoundary bool) error {
	switch {
	case errors.Is(err, errLineTooLong):
		return &ProtocolError{Kind: BadStartMarker, Err: err}
	case atBoundary && errors.Is(err, io.EOF):
		return io.EOF
	default:
		return truncated(err)
	}
}

// ReadRequest reads one complete request header from r.
//
// For commands without payload the end marker is consumed as well. For PUT
// the returned request carries a PayloadReader positioned at the first
// payload byte; the caller must read or Drain it before the next request.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	var skipped *ProtocolError
	if err := ReadStartMarker(r); err != nil {
		if !errors.As(err, &skipped) || !skipped.Recovered {
			return nil, err
		}
	}

	line, err := readLine(r)
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return nil, &ProtocolError{Kind: UnknownCommand, Resync: true, Err: err}
		}
		return nil, truncated(err)
	}

	token := strings.TrimSpace(string(line))
	cmd := ParseCommand(token)
	if cmd == CommandUnknown {
		return nil, &ProtocolError{Kind: UnknownCommand, Line: loggedLine([]byte(token)), Resync: true}
	}

	if cmd.HasPayload() {
		pathLine, err := readLine(r)
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				return nil, &ProtocolError{Kind: BadArguments, Resync: true, Err: err}
			}
			return nil, truncated(err)
		}
		return &Request{
			Command: cmd,
			Args:    []string{trimLineEnding(pathLine)},
			Payload: NewPayloadReader(r),
			Skipped: skipped,
		}, nil
	}

	args, err := readArgs(r)
	if err != nil {
		return nil, err
	}

	min, max := cmd.Arity()
	if len(args) < min || len(args) > max {
		return nil, &ProtocolError{Kind: BadArguments, Line: cmd.String()}
	}

	return &Request{Command: cmd, Args: args, Skipped: skipped}, nil
}

// readArgs reads argument lines up to and including the end marker.
func readArgs(r *bufio.Reader) ([]string, error) {
	var args []string
	var pending []byte

	for {
		line := pending
		pending = nil
		if line == nil {
			var err error
			line, err = readLine(r)
			if err != nil {
				if errors.Is(err, errLineTooLong) {
					return nil, &ProtocolError{Kind: BadArguments, Resync: true, Err: err}
				}
				return nil, truncated(err)
			}
		}

		if bytes.Equal(line, lineCRLF) {
			next, err := readLine(r)
			if err != nil {
				if errors.Is(err, errLineTooLong) {
					return nil, &ProtocolError{Kind: BadArguments, Resync: true, Err: err}
				}
				return nil, truncated(err)
			}
			if bytes.Equal(next, lineDone) {
				return args, nil
			}
			// An empty argument line followed by more data.
			args = append(args, "")
			pending = bytes.Clone(next)
		} else {
			args = append(args, trimLineEnding(line))
		}

		if len(args) > MaxArgumentLines {
			return nil, &ProtocolError{Kind: BadArguments, Resync: true}
		}
	}
}

// trimLineEnding strips "\n" and an optional preceding "\r".
func trimLineEnding(line []byte) string {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line)
}
