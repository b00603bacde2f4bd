package e2e

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	startMarker = "\r\nFSYNC\r\n"
	endMarker   = "\r\nDONE\r\n"
)

// Response is one response frame.
type Response struct {
	Status string
	Body   []byte
}

// Lines splits the body of an OK frame into its result lines.
func (r Response) Lines() []string {
	if len(r.Body) == 0 {
		return nil
	}
	return strings.Split(string(r.Body), "\r\n")
}

// OK reports whether the frame is an OK frame.
func (r Response) OK() bool {
	return r.Status == "OK"
}

// Client speaks the fsync protocol over one connection. Every method fails
// the test on transport errors.
type Client struct {
	t    testing.TB
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to addr.
func Dial(t testing.TB, addr string) *Client {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &Client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// Send writes a request without waiting for the response.
func (c *Client) Send(command string, args ...string) {
	c.t.Helper()

	var b strings.Builder
	b.WriteString(startMarker)
	b.WriteString(command)
	b.WriteByte('\n')
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	b.WriteString(endMarker)
	c.write([]byte(b.String()))
}

// Do sends a request and reads its response.
func (c *Client) Do(command string, args ...string) Response {
	c.t.Helper()
	c.Send(command, args...)
	return c.Read()
}

// Put uploads data to path. It returns the ACK frame on success, or the
// ERROR frame that replaced it.
func (c *Client) Put(path string, data []byte) Response {
	c.t.Helper()

	var b bytes.Buffer
	b.WriteString(startMarker)
	b.WriteString("PUT\n")
	b.WriteString(path)
	b.WriteByte('\n')
	b.Write(data)
	b.WriteString(endMarker)
	c.write(b.Bytes())

	return c.Read()
}

// Get downloads path. On success the returned body is the file content.
func (c *Client) Get(path string) Response {
	c.t.Helper()
	return c.Do("GET", path)
}

// Read reads the next response frame.
func (c *Client) Read() Response {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	start := make([]byte, len(startMarker))
	_, err := io.ReadFull(c.r, start)
	require.NoError(c.t, err, "read start marker")
	require.Equal(c.t, startMarker, string(start))

	status, err := c.r.ReadString('\n')
	require.NoError(c.t, err, "read status")
	status = strings.TrimSuffix(status, "\r\n")

	var body []byte
	for !bytes.HasSuffix(body, []byte(endMarker)) {
		b, err := c.r.ReadByte()
		require.NoError(c.t, err, "read body")
		body = append(body, b)
	}
	body = body[:len(body)-len(endMarker)]

	return Response{Status: status, Body: body}
}

// Closed reports whether the server closed the connection.
func (c *Client) Closed() bool {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadByte()
	return err == io.EOF
}

func (c *Client) write(b []byte) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := c.conn.Write(b)
	require.NoError(c.t, err, "write request")
}
