package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsyncd/pkg/store/memory"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := memory.NewMemoryStore(context.Background(), "/root")
	require.NoError(t, err)
	reg, err := New(st, "/root")
	require.NoError(t, err)
	return reg
}

func TestNew(t *testing.T) {
	reg := newTestRegistry(t)

	assert.Equal(t, "/root", reg.Root())
	assert.NotNil(t, reg.Bus())
	assert.Same(t, reg.Resolver(), reg.Handler().Resolver)
	assert.Same(t, reg.Bus(), reg.Handler().Bus)
	assert.NoError(t, reg.Healthcheck(context.Background()))
	assert.NoError(t, reg.Close())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, "/root")
	assert.Error(t, err)

	st, err := memory.NewMemoryStore(context.Background(), "/root")
	require.NoError(t, err)
	_, err = New(st, "/missing")
	assert.Error(t, err)
}

func TestSessionTracking(t *testing.T) {
	reg := newTestRegistry(t)
	t0 := time.Now()

	reg.RecordSession("10.0.0.2:4000", "fsync", t0.Add(time.Second))
	reg.RecordSession("10.0.0.1:4000", "fsync", t0)
	reg.RecordSession("10.0.0.3:4000", "fsync", t0)
	assert.Equal(t, 3, reg.CountSessions())

	sessions := reg.ListSessions()
	require.Len(t, sessions, 3)
	assert.Equal(t, "10.0.0.1:4000", sessions[0].ClientAddr)
	assert.Equal(t, "10.0.0.3:4000", sessions[1].ClientAddr)
	assert.Equal(t, "10.0.0.2:4000", sessions[2].ClientAddr)

	// Snapshot is a copy.
	sessions[0].Protocol = "changed"
	assert.Equal(t, "fsync", reg.ListSessions()[0].Protocol)

	assert.True(t, reg.RemoveSession("10.0.0.1:4000"))
	assert.False(t, reg.RemoveSession("10.0.0.1:4000"))
	assert.Equal(t, 2, reg.CountSessions())
}

func TestHealthcheckDetectsMissingRoot(t *testing.T) {
	st, err := memory.NewMemoryStore(context.Background(), "/root")
	require.NoError(t, err)
	reg, err := New(st, "/root")
	require.NoError(t, err)

	require.NoError(t, st.Fs().RemoveAll("/root"))
	assert.Error(t, reg.Healthcheck(context.Background()))
}
