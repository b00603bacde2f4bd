package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSleepWokenByOtherClient blocks one session until another one writes
// the watched path
func TestSleepWokenByOtherClient(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		sleeper := tc.Dial()
		writer := tc.Dial()

		sleeper.Send("SLEEP", "/watched.txt")
		tc.WaitForSleepers(1)

		require.Equal(t, "ACK", writer.Put("/watched.txt", []byte("v1")).Status)

		resp := sleeper.Read()
		require.True(t, resp.OK())
		assert.Equal(t, []string{"created /watched.txt"}, resp.Lines())
		tc.WaitForSleepers(0)

		sleeper.Send("SLEEP", "/watched.txt")
		tc.WaitForSleepers(1)
		require.Equal(t, "ACK", writer.Put("/watched.txt", []byte("v2")).Status)
		assert.Equal(t, []string{"modified /watched.txt"}, sleeper.Read().Lines())
	})
}

// TestSleepIgnoresUnrelatedPaths keeps a scoped sleeper blocked while other
// paths change
func TestSleepIgnoresUnrelatedPaths(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		sleeper := tc.Dial()
		writer := tc.Dial()

		require.True(t, writer.Do("MKDIR", "/y").OK())

		sleeper.Send("SLEEP", "/y")
		tc.WaitForSleepers(1)

		require.Equal(t, "ACK", writer.Put("/x", []byte("x")).Status)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, tc.Registry.Bus().Len(), "unrelated change must not wake the sleeper")

		require.Equal(t, "ACK", writer.Put("/y/inner.txt", []byte("y")).Status)
		assert.Equal(t, []string{"created /y/inner.txt"}, sleeper.Read().Lines())
	})
}

// TestSleepWithoutPath wakes on any change
func TestSleepWithoutPath(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		sleeper := tc.Dial()
		writer := tc.Dial()

		sleeper.Send("SLEEP")
		tc.WaitForSleepers(1)

		require.True(t, writer.Do("MKDIR", "/anything").OK())
		assert.Equal(t, []string{"created /anything"}, sleeper.Read().Lines())
	})
}

// TestSleepCancelledByClient ends the wait when the sleeping client sends
// its next request
func TestSleepCancelledByClient(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		c.Send("SLEEP", "/never")
		tc.WaitForSleepers(1)

		c.Send("PWD")
		assert.Equal(t, []string{"cancelled"}, c.Read().Lines())
		tc.WaitForSleepers(0)

		assert.Equal(t, []string{"/"}, c.Read().Lines(), "the interrupting request is still served")
	})
}

// TestSleepDisconnect leaves no subscription behind when the client goes away
func TestSleepDisconnect(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		c.Send("SLEEP", "/gone")
		tc.WaitForSleepers(1)

		require.NoError(t, c.conn.Close())
		tc.WaitForSleepers(0)

		// Later changes reach nobody.
		require.Equal(t, "ACK", tc.Dial().Put("/gone", []byte("x")).Status)
		assert.Equal(t, 0, tc.Registry.Bus().Len())
	})
}

// TestSleepEscape refuses to watch outside the root
func TestSleepEscape(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		assert.Equal(t, "ERROR", c.Do("SLEEP", "../outside").Status)
		assert.Equal(t, 0, tc.Registry.Bus().Len())
	})
}

// TestSleepExternalChange wakes a sleeper when a file is written to the disk
// directly, bypassing the protocol
func TestSleepExternalChange(t *testing.T) {
	tc := NewTestContext(t, &TestConfig{Name: "filesystem+watch", Storage: StorageFilesystem, Watch: true})
	defer tc.Cleanup()

	c := tc.Dial()
	c.Send("SLEEP", "/ext.txt")
	tc.WaitForSleepers(1)

	tc.WriteDiskFile("/ext.txt", []byte("from outside"))

	resp := c.Read()
	require.True(t, resp.OK())
	assert.Equal(t, []string{"created /ext.txt"}, resp.Lines())
}
