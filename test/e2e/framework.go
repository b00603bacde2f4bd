package e2e

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/adapter/fsync"
	"github.com/marmos91/fsyncd/pkg/config"
	"github.com/marmos91/fsyncd/pkg/registry"
	"github.com/marmos91/fsyncd/pkg/server"
	"github.com/marmos91/fsyncd/pkg/watch"
)

// TestContext runs a complete fsyncd server, built the way the binary
// builds it, for one test.
type TestContext struct {
	T        *testing.T
	Config   *TestConfig
	Server   *server.FsyncServer
	Registry *registry.Registry
	Adapter  *fsync.FsyncAdapter
	Addr     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewTestContext starts a server for cfg and registers its cleanup.
func NewTestContext(t *testing.T, cfg *TestConfig) *TestContext {
	t.Helper()
	logger.SetLevel("ERROR")

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{T: t, Config: cfg, ctx: ctx, cancel: cancel}
	t.Cleanup(tc.Cleanup)

	serverCfg := cfg.Build(t)

	reg, err := config.InitializeRegistry(ctx, serverCfg)
	require.NoError(t, err, "initialize registry")
	tc.Registry = reg

	if serverCfg.Watch.Enabled {
		w, err := watch.New(reg.Root(), reg.Bus())
		require.NoError(t, err, "start watcher")
		tc.wg.Add(1)
		go func() {
			defer tc.wg.Done()
			_ = w.Run(ctx)
		}()
	}

	adapters, err := config.CreateAdapters(serverCfg, nil)
	require.NoError(t, err)
	require.Len(t, adapters, 1)

	adp, ok := adapters[0].(*fsync.FsyncAdapter)
	require.True(t, ok, "unexpected adapter type %T", adapters[0])
	tc.Adapter = adp

	tc.Server = server.New(reg)
	require.NoError(t, tc.Server.AddAdapter(adp))

	tc.wg.Add(1)
	go func() {
		defer tc.wg.Done()
		if err := tc.Server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("Server error: %v", err)
		}
	}()

	select {
	case <-adp.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for server to start")
	}
	tc.Addr = adp.Addr().String()

	return tc
}

// Cleanup stops the server and releases the storage. Safe to call twice.
func (tc *TestContext) Cleanup() {
	tc.once.Do(func() {
		tc.cancel()

		done := make(chan struct{})
		go func() {
			tc.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			tc.T.Logf("Server stop timeout")
		}

		if tc.Registry != nil {
			_ = tc.Registry.Close()
		}
	})
}

// Dial opens a client connection to the server.
func (tc *TestContext) Dial() *Client {
	tc.T.Helper()
	return Dial(tc.T, tc.Addr)
}

// DiskPath returns where a client path lives on disk. Only meaningful for
// the filesystem backend.
func (tc *TestContext) DiskPath(clientPath string) string {
	return filepath.Join(tc.Registry.Root(), filepath.FromSlash(clientPath))
}

// RequireFilesystem skips the test for backends without a disk tree.
func (tc *TestContext) RequireFilesystem() {
	tc.T.Helper()
	if tc.Config.Storage != StorageFilesystem {
		tc.T.Skipf("requires the filesystem backend, have %s", tc.Config.Storage)
	}
}

// WaitForSleepers blocks until n SLEEP requests are pending.
func (tc *TestContext) WaitForSleepers(n int) {
	tc.T.Helper()
	require.Eventually(tc.T, func() bool {
		return tc.Registry.Bus().Len() == n
	}, 3*time.Second, 5*time.Millisecond, "waiting for %d sleeper(s)", n)
}

// WriteDiskFile writes a file directly under the root, bypassing the
// protocol.
func (tc *TestContext) WriteDiskFile(clientPath string, content []byte) {
	tc.T.Helper()
	require.NoError(tc.T, os.WriteFile(tc.DiskPath(clientPath), content, 0o644))
}
