package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsyncd/pkg/registry"
	"github.com/marmos91/fsyncd/pkg/store/memory"
)

// fakeAdapter blocks in Serve until its context is cancelled or Stop is
// called, or fails immediately when serveErr is set.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	reg     *registry.Registry
	stopped chan struct{}
	stops   atomic.Int32
}

func newFake(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopped: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stopped:
	}
	return nil
}

func (f *fakeAdapter) SetRegistry(reg *registry.Registry) { f.reg = reg }

func (f *fakeAdapter) Stop(ctx context.Context) error {
	if f.stops.Add(1) == 1 {
		close(f.stopped)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	st, err := memory.NewMemoryStore(context.Background(), "/srv")
	require.NoError(t, err)
	reg, err := registry.New(st, "/srv")
	require.NoError(t, err)
	return reg
}

func TestAddAdapter(t *testing.T) {
	reg := newRegistry(t)
	srv := New(reg)

	a := newFake("fsync", 49152)
	require.NoError(t, srv.AddAdapter(a))
	assert.Same(t, reg, a.reg)

	assert.Error(t, srv.AddAdapter(newFake("fsync", 1)), "duplicate protocol")
	assert.Error(t, srv.AddAdapter(newFake("other", 49152)), "duplicate port")
	assert.NoError(t, srv.AddAdapter(newFake("ephemeral", 0)))

	assert.Len(t, srv.Adapters(), 2)
	assert.Panics(t, func() { _ = srv.AddAdapter(nil) })
}

func TestServeStopsAdaptersOnCancel(t *testing.T) {
	srv := New(newRegistry(t))
	a := newFake("a", 1)
	b := newFake("b", 2)
	require.NoError(t, srv.AddAdapter(a))
	require.NoError(t, srv.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), a.stops.Load())
	assert.Equal(t, int32(1), b.stops.Load())

	assert.Panics(t, func() { _ = srv.Serve(context.Background()) })
	assert.Panics(t, func() { _ = srv.AddAdapter(newFake("late", 3)) })
}

func TestServeFailingAdapterStopsOthers(t *testing.T) {
	srv := New(newRegistry(t))
	healthy := newFake("healthy", 1)
	broken := newFake("broken", 2)
	broken.serveErr = errors.New("bind: address already in use")
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken adapter error")
	assert.Equal(t, int32(1), healthy.stops.Load())
}

func TestServeWithoutAdapters(t *testing.T) {
	srv := New(newRegistry(t))
	assert.Error(t, srv.Serve(context.Background()))
}

func TestNewPanicsOnNilRegistry(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
}
