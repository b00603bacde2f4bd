// Package adapter defines the contract between server.FsyncServer and the
// wire protocol front ends that expose a registry to clients.
package adapter

import (
	"context"

	"github.com/marmos91/fsyncd/pkg/registry"
)

// Adapter serves the shared registry over one wire protocol.
//
// The server calls SetRegistry once, then Serve in its own goroutine. Stop
// may arrive at any time, concurrently with Serve, and more than once.
type Adapter interface {
	// Serve binds the listener and handles connections until ctx is
	// cancelled. It returns nil after a graceful shutdown. A return before
	// cancellation is treated by the server as fatal for every adapter.
	Serve(ctx context.Context) error

	// SetRegistry hands the adapter the store, resolver and change bus it
	// serves. Called before Serve.
	SetRegistry(reg *registry.Registry)

	// Stop closes the listener and waits for sessions to finish, forcing
	// them closed when ctx expires. Idempotent.
	Stop(ctx context.Context) error

	// Protocol is the name used in logs and metric labels.
	Protocol() string

	// Port is the bound TCP port once Serve is listening, the configured
	// one before that (0 means any free port).
	Port() int
}
