package fsync

import (
	"bufio"
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns its data in reads of the given sizes, cycling
// through them. It models a transport that splits writes arbitrarily.
type chunkedReader struct {
	data  []byte
	sizes []int
	i     int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.sizes[c.i%len(c.sizes)]
	c.i++
	n = min(n, len(p), len(c.data))
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func readPayload(t *testing.T, wire []byte, sizes ...int) ([]byte, *bufio.Reader) {
	t.Helper()
	r := bufio.NewReaderSize(&chunkedReader{data: wire, sizes: sizes}, 16)
	p := NewPayloadReader(r)

	got, err := io.ReadAll(p)
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, int64(len(got)), p.N())
	return got, r
}

func TestPayloadReaderEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"one byte", []byte("x")},
		{"marker length minus one", []byte("1234567")},
		{"marker length", []byte("12345678")},
		{"marker prefix at tail", []byte("abc\r\nDON")},
		{"marker prefix inside", []byte("\r\nDONE\r\r\nDONE\nxyz")},
		{"only CRLFs", []byte("\r\n\r\n\r\n")},
		{"start marker inside", []byte("\r\nFSYNC\r\n")},
		{"larger than buffer", bytes.Repeat([]byte("0123456789\r\n"), 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := append(append([]byte{}, tt.payload...), EndMarker...)
			wire = append(wire, "NEXT"...)

			got, r := readPayload(t, wire, 5, 3, 1, 16)
			assert.Equal(t, string(tt.payload), string(got))

			rest, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "NEXT", string(rest))
		})
	}
}

func TestPayloadReaderMarkerStraddlesReads(t *testing.T) {
	payload := []byte("hello world")
	wire := append(append([]byte{}, payload...), EndMarker...)

	// Split so the first 5 marker bytes end one read and the last 3 start
	// the next.
	first := len(payload) + 5
	got, _ := readPayload(t, wire, first, len(wire)-first)
	assert.Equal(t, payload, got)
}

func TestPayloadReaderChunkInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	fragments := [][]byte{
		[]byte("\r"), []byte("\n"), []byte("\r\n"), []byte("DONE"),
		[]byte("\r\nDON"), []byte("DONE\r\n"), []byte("\r\nDONE\r"), []byte("data"),
	}

	for i := 0; i < 300; i++ {
		var payload []byte
		for n := rng.Intn(40); n > 0; n-- {
			payload = append(payload, fragments[rng.Intn(len(fragments))]...)
		}
		wire := append(append([]byte{}, payload...), EndMarker...)
		// The first marker in the stream must be the terminating one.
		if bytes.Index(wire, EndMarker) != len(payload) {
			continue
		}

		whole, _ := readPayload(t, wire, len(wire))

		sizes := make([]int, 1+rng.Intn(6))
		for j := range sizes {
			sizes[j] = 1 + rng.Intn(len(EndMarker)+4)
		}
		split, _ := readPayload(t, wire, sizes...)

		require.Equal(t, payload, whole, "iteration %d", i)
		require.Equal(t, whole, split, "iteration %d sizes %v", i, sizes)
	}
}

func TestPayloadReaderTruncated(t *testing.T) {
	r := bufio.NewReaderSize(&chunkedReader{data: []byte("partial\r\nDO"), sizes: []int{3}}, 16)
	p := NewPayloadReader(r)

	got, err := io.ReadAll(p)
	requireProtocolError(t, err, StreamTruncated)
	assert.False(t, p.Done())

	// Bytes that could still be a marker are never handed out.
	assert.Equal(t, "part", string(got))
}

func TestPayloadReaderDrain(t *testing.T) {
	wire := append(bytes.Repeat([]byte("z"), 100), EndMarker...)
	wire = append(wire, "\r\nFSYNC\r\n"...)
	r := bufio.NewReaderSize(bytes.NewReader(wire), 16)

	p := NewPayloadReader(r)
	buf := make([]byte, 10)
	_, err := p.Read(buf)
	require.NoError(t, err)

	require.NoError(t, p.Drain())
	assert.True(t, p.Done())
	require.NoError(t, ReadStartMarker(r))
}
