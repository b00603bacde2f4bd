package fsync

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// PayloadReader streams a raw PUT payload up to the end marker.
//
// The reader scans each chunk buffered by the underlying bufio.Reader
// together with a carry-over of at most len(EndMarker)-1 bytes from the
// previous chunk. A marker split across two transport reads therefore still
// matches, and memory use does not depend on the payload size. Only bytes up
// to the end of the marker are consumed from the underlying reader; anything
// after it belongs to the next request.
//
// Thread safety: not safe for concurrent use.
type PayloadReader struct {
	r *bufio.Reader

	// carry holds the tail of the last window. These bytes were already
	// consumed from r but could be the start of the end marker.
	carry []byte

	// scratch backs the carry+chunk window between fills.
	scratch []byte

	// pending is the part of the last window that is known to be payload
	// and has not been returned yet.
	pending []byte

	done bool
	err  error
	n    int64
}

// NewPayloadReader returns a reader positioned at the first payload byte.
func NewPayloadReader(r *bufio.Reader) *PayloadReader {
	return &PayloadReader{
		r:     r,
		carry: make([]byte, 0, len(EndMarker)-1),
	}
}

// Read implements io.Reader. It returns io.EOF once the end marker has been
// consumed and a StreamTruncated ProtocolError if the stream ends first.
func (p *PayloadReader) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		if p.done {
			return 0, io.EOF
		}
		if p.err != nil {
			return 0, p.err
		}
		if err := p.fill(); err != nil {
			p.err = err
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	p.n += int64(n)
	return n, nil
}

// fill scans the next buffered chunk and sets pending to the payload bytes
// it proves. pending may stay empty when the chunk is shorter than the
// carry window.
func (p *PayloadReader) fill() error {
	if _, err := p.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return truncated(err)
		}
		return err
	}
	chunk, _ := p.r.Peek(p.r.Buffered())

	window := append(p.scratch[:0], p.carry...)
	window = append(window, chunk...)
	p.scratch = window

	if i := bytes.Index(window, EndMarker); i >= 0 {
		if _, err := p.r.Discard(i + len(EndMarker) - len(p.carry)); err != nil {
			return err
		}
		p.carry = p.carry[:0]
		p.pending = window[:i]
		p.done = true
		return nil
	}

	keep := min(len(EndMarker)-1, len(window))
	tail := len(window) - keep
	p.carry = append(p.carry[:0], window[tail:]...)
	p.pending = window[:tail]

	_, err := p.r.Discard(len(chunk))
	return err
}

// Drain discards the rest of the payload, including the end marker.
func (p *PayloadReader) Drain() error {
	_, err := io.Copy(io.Discard, p)
	return err
}

// Done reports whether the end marker has been consumed.
func (p *PayloadReader) Done() bool {
	return p.done
}

// N returns the number of payload bytes returned so far.
func (p *PayloadReader) N() int64 {
	return p.n
}
