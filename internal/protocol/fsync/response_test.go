package fsync

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponseWriter() (*ResponseWriter, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewResponseWriter(bufio.NewWriter(&buf)), &buf
}

func TestWriteOK(t *testing.T) {
	rw, buf := newResponseWriter()
	require.NoError(t, rw.WriteOK())
	assert.Equal(t, "\r\nFSYNC\r\nOK\r\n\r\nDONE\r\n", buf.String())

	buf.Reset()
	require.NoError(t, rw.WriteOK("file\ta.txt", "dir\tsub"))
	assert.Equal(t, "\r\nFSYNC\r\nOK\r\nfile\ta.txt\r\ndir\tsub\r\nDONE\r\n", buf.String())
	assert.Equal(t, StatusOK, rw.Status())
}

func TestWriteError(t *testing.T) {
	rw, buf := newResponseWriter()
	require.NoError(t, rw.WriteError(MsgInvalidRequest))
	assert.Equal(t, "\r\nFSYNC\r\nERROR\r\nInvalid request\r\nDONE\r\n", buf.String())
}

func TestStreamedFrame(t *testing.T) {
	rw, buf := newResponseWriter()

	require.NoError(t, rw.Begin(StatusOut))
	assert.True(t, rw.Open())
	n, err := io.Copy(rw, strings.NewReader("file bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	require.NoError(t, rw.End())

	assert.False(t, rw.Open())
	assert.Equal(t, int64(10), rw.Written())
	assert.Equal(t, "\r\nFSYNC\r\nOUT\r\nfile bytes\r\nDONE\r\n", buf.String())
}

func TestErrorAfterOpenFrame(t *testing.T) {
	rw, buf := newResponseWriter()

	require.NoError(t, rw.Begin(StatusOut))
	_, err := rw.Write([]byte("par"))
	require.NoError(t, err)
	require.NoError(t, rw.WriteError("read failed"))

	want := "\r\nFSYNC\r\nOUT\r\npar\r\nDONE\r\n" +
		"\r\nFSYNC\r\nERROR\r\nread failed\r\nDONE\r\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteWithoutFrame(t *testing.T) {
	rw, _ := newResponseWriter()
	_, err := rw.Write([]byte("x"))
	assert.ErrorIs(t, err, errFrameNotOpen)
	assert.ErrorIs(t, rw.End(), errFrameNotOpen)
}

type failingWriter struct{}

var errBroken = errors.New("broken pipe")

func (failingWriter) Write([]byte) (int, error) { return 0, errBroken }

func TestStickyTransportError(t *testing.T) {
	rw := NewResponseWriter(bufio.NewWriter(failingWriter{}))

	assert.ErrorIs(t, rw.WriteOK("x"), errBroken)
	assert.ErrorIs(t, rw.Err(), errBroken)
	assert.ErrorIs(t, rw.WriteError("y"), errBroken)

	rw.Reset()
	assert.ErrorIs(t, rw.Err(), errBroken)
}

func TestStreamedBodyErrorIsSticky(t *testing.T) {
	rw := NewResponseWriter(bufio.NewWriterSize(failingWriter{}, 16))
	require.NoError(t, rw.Begin(StatusOut))

	_, err := io.Copy(rw, strings.NewReader(strings.Repeat("x", 64)))
	assert.ErrorIs(t, err, errBroken)
	assert.ErrorIs(t, rw.Err(), errBroken)
	assert.ErrorIs(t, rw.End(), errBroken)
}
