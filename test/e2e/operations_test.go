package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCreateAndReadFile uploads a file and reads it back
func TestCreateAndReadFile(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		require.Equal(t, "ACK", c.Put("/hello.txt", []byte("Hello, fsync!")).Status)

		resp := c.Get("/hello.txt")
		require.Equal(t, "OUT", resp.Status)
		assert.Equal(t, "Hello, fsync!", string(resp.Body))

		stat := c.Do("STAT", "/hello.txt")
		require.True(t, stat.OK())
		assert.True(t, strings.HasPrefix(string(stat.Body), "kind=file size=13 "), string(stat.Body))
	})
}

// TestOverwriteFile replaces the content of an existing file
func TestOverwriteFile(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		require.Equal(t, "ACK", c.Put("/edit.txt", []byte("initial content that is long")).Status)
		require.Equal(t, "ACK", c.Put("/edit.txt", []byte("short")).Status)

		assert.Equal(t, "short", string(c.Get("/edit.txt").Body))
	})
}

// TestCreateNestedFolders creates a deep directory chain and lists it
func TestCreateNestedFolders(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		current := ""
		for i := 0; i < 20; i++ {
			current = fmt.Sprintf("%s/nested%d", current, i)
			require.True(t, c.Do("MKDIR", current).OK(), "mkdir %s", current)
		}

		require.Equal(t, "ACK", c.Put(current+"/leaf.txt", []byte("deep")).Status)
		assert.Equal(t, "deep", string(c.Get(current+"/leaf.txt").Body))

		resp := c.Do("LIST", "/")
		require.True(t, resp.OK())
		assert.Equal(t, []string{"dir\tnested0"}, resp.Lines())
	})
}

// TestListDirectory lists files and directories sorted by name
func TestListDirectory(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		require.True(t, c.Do("MKDIR", "/docs").OK())
		require.Equal(t, "ACK", c.Put("/docs/b.txt", nil).Status)
		require.Equal(t, "ACK", c.Put("/docs/a.txt", nil).Status)
		require.True(t, c.Do("MKDIR", "/docs/sub").OK())

		resp := c.Do("LIST", "/docs")
		require.True(t, resp.OK())
		assert.Equal(t, []string{"file\ta.txt", "file\tb.txt", "dir\tsub"}, resp.Lines())

		empty := c.Do("LIST", "/docs/sub")
		require.True(t, empty.OK())
		assert.Empty(t, empty.Lines())
	})
}

// TestDeleteFileAndFolder removes entries and checks the failures
func TestDeleteFileAndFolder(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		require.True(t, c.Do("MKDIR", "/dir").OK())
		require.Equal(t, "ACK", c.Put("/dir/file.txt", []byte("x")).Status)

		assert.Equal(t, "ERROR", c.Do("RMDIR", "/dir").Status, "directory is not empty")
		assert.Equal(t, "ERROR", c.Do("RMDIR", "/dir/file.txt").Status, "not a directory")

		require.True(t, c.Do("DEL", "/dir/file.txt").OK())
		assert.Equal(t, "ERROR", c.Get("/dir/file.txt").Status)
		assert.Equal(t, "ERROR", c.Do("DEL", "/dir/file.txt").Status, "already deleted")

		require.True(t, c.Do("RMDIR", "/dir").OK())
		assert.Equal(t, "ERROR", c.Do("STAT", "/dir").Status)

		assert.Equal(t, "ERROR", c.Do("RMDIR", "/").Status, "root cannot be removed")
	})
}

// TestWorkingDirectory checks CD and PWD and relative paths
func TestWorkingDirectory(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()
		other := tc.Dial()

		require.True(t, c.Do("MKDIR", "/a").OK())
		require.True(t, c.Do("MKDIR", "/a/b").OK())
		require.True(t, c.Do("CD", "a/b").OK())
		assert.Equal(t, []string{"/a/b"}, c.Do("PWD").Lines())

		require.Equal(t, "ACK", c.Put("rel.txt", []byte("relative")).Status)
		assert.Equal(t, "relative", string(other.Get("/a/b/rel.txt").Body))

		require.True(t, c.Do("CD", "..").OK())
		assert.Equal(t, []string{"/a"}, c.Do("PWD").Lines())

		assert.Equal(t, "ERROR", c.Do("CD", "missing").Status)
		assert.Equal(t, []string{"/a"}, c.Do("PWD").Lines(), "failed CD keeps the directory")

		assert.Equal(t, []string{"/"}, other.Do("PWD").Lines(), "sessions are independent")
	})
}

// TestSandboxEscape makes sure nothing outside the root is reachable
func TestSandboxEscape(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		for _, path := range []string{"../../../../etc/passwd", "/../etc/passwd", "/a/../../etc"} {
			assert.Equal(t, "ERROR", c.Get(path).Status, "GET %s", path)
			assert.Equal(t, "ERROR", c.Put(path, []byte("x")).Status, "PUT %s", path)
		}
		assert.Equal(t, "ERROR", c.Do("CD", "../..").Status)
		assert.Equal(t, []string{"/"}, c.Do("PWD").Lines())
	})
}

// TestSymlinkEscape follows a link pointing outside the root
func TestSymlinkEscape(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		tc.RequireFilesystem()

		outside := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("s3cr3t"), 0o644))
		require.NoError(t, os.Symlink(outside, tc.DiskPath("/link")))

		c := tc.Dial()
		assert.Equal(t, "ERROR", c.Get("/link/secret").Status)
		assert.Equal(t, "ERROR", c.Put("/link/new", []byte("x")).Status)
		assert.Equal(t, "ERROR", c.Do("CD", "/link").Status)

		_, err := os.Stat(filepath.Join(outside, "new"))
		assert.True(t, os.IsNotExist(err), "nothing was written outside the root")
	})
}

// TestDeleteSymlink removes links without touching what they point to
func TestDeleteSymlink(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		tc.RequireFilesystem()

		tc.WriteDiskFile("/target.txt", []byte("keep me"))
		require.NoError(t, os.Symlink(tc.DiskPath("/target.txt"), tc.DiskPath("/link")))
		require.NoError(t, os.Symlink(tc.DiskPath("/nowhere"), tc.DiskPath("/dangling")))

		c := tc.Dial()
		watcher := tc.Dial()

		watcher.Send("SLEEP", "/link")
		tc.WaitForSleepers(1)

		require.True(t, c.Do("DEL", "/link").OK())
		assert.Equal(t, []string{"removed /link"}, watcher.Read().Lines())

		_, err := os.Lstat(tc.DiskPath("/link"))
		assert.True(t, os.IsNotExist(err), "link is gone")
		assert.Equal(t, "keep me", string(c.Get("/target.txt").Body))

		require.True(t, c.Do("DEL", "/dangling").OK())
		_, err = os.Lstat(tc.DiskPath("/dangling"))
		assert.True(t, os.IsNotExist(err), "dangling link is gone")
	})
}

// TestDanglingSymlinkInsideRoot writes through a link whose target is missing
func TestDanglingSymlinkInsideRoot(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		tc.RequireFilesystem()
		require.NoError(t, os.Symlink("later.txt", tc.DiskPath("/pending")))

		c := tc.Dial()
		require.Equal(t, "ACK", c.Put("/pending", []byte("arrived")).Status)
		assert.Equal(t, "arrived", string(c.Get("/later.txt").Body))
	})
}

// TestMalformedRequests sends garbage and checks the connection recovers
func TestMalformedRequests(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		resp := c.Do("FROB", "/x")
		assert.Equal(t, Response{Status: "ERROR", Body: []byte("Invalid request")}, resp)

		resp = c.Do("GET")
		assert.Equal(t, "ERROR", resp.Status, "missing argument")

		require.True(t, c.Do("PWD").OK(), "connection is still usable")
	})
}

// TestQuit closes the connection without a response
func TestQuit(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		c := tc.Dial()

		c.Send("QUIT")
		assert.True(t, c.Closed())
	})
}

// TestDiskLayout checks the filesystem backend stores plain files
func TestDiskLayout(t *testing.T) {
	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		tc.RequireFilesystem()
		c := tc.Dial()

		require.True(t, c.Do("MKDIR", "/photos").OK())
		require.Equal(t, "ACK", c.Put("/photos/cat.jpg", []byte("meow")).Status)

		data, err := os.ReadFile(tc.DiskPath("/photos/cat.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "meow", string(data))

		// Files placed on disk are served.
		tc.WriteDiskFile("/photos/dog.jpg", []byte("woof"))
		assert.Equal(t, "woof", string(c.Get("/photos/dog.jpg").Body))
	})
}
