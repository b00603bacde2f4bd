package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesHealthAndMetrics(t *testing.T) {
	InitRegistry()

	srv := NewServer(ServerConfig{Port: 0})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not start")
	}
	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	require.NoError(t, <-done)

	// Stop after shutdown is a no-op.
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestIsEnabledAfterInit(t *testing.T) {
	InitRegistry()
	assert.True(t, IsEnabled())
	assert.NotNil(t, GetRegistry())
}

func TestServerHealthFailure(t *testing.T) {
	srv := NewServer(ServerConfig{
		Port:   0,
		Health: func(context.Context) error { return errors.New("root is gone") },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	<-srv.Ready()

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "root is gone\n", string(body))

	cancel()
	require.NoError(t, <-done)
}
