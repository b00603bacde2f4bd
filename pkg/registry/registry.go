package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/fsyncd/internal/protocol/fsync/handlers"
	"github.com/marmos91/fsyncd/pkg/changebus"
	"github.com/marmos91/fsyncd/pkg/sandbox"
	"github.com/marmos91/fsyncd/pkg/store"
)

// Registry owns the resources shared by every connection: the store, the
// sandbox resolver over its root, the change bus and the command handler.
//
// The Registry also tracks active sessions (connected clients). Session
// information is ephemeral and kept in-memory only.
//
// Example usage:
//
//	st, _ := fs.NewFSStore(ctx, fs.Config{Root: "/srv/fsync"})
//	reg, _ := registry.New(st, st.Root())
//
//	adapter.SetRegistry(reg)
//	defer reg.Close()
type Registry struct {
	store    store.Store
	resolver *sandbox.Resolver
	bus      *changebus.Bus
	handler  *handlers.Handler

	mu       sync.RWMutex
	sessions map[string]*SessionInfo // key: clientAddr
}

// SessionInfo describes one connected client.
type SessionInfo struct {
	ClientAddr  string    // Remote address
	Protocol    string    // Adapter that accepted the connection
	ConnectedAt time.Time // When the connection was accepted
}

// New builds a registry serving root from st.
//
// root must be an existing directory of st; it is canonicalized by the
// resolver and becomes the sandbox boundary for every session.
func New(st store.Store, root string) (*Registry, error) {
	if st == nil {
		return nil, fmt.Errorf("cannot create registry with nil store")
	}

	resolver, err := sandbox.New(root, st)
	if err != nil {
		return nil, fmt.Errorf("server root: %w", err)
	}

	bus := changebus.New()
	return &Registry{
		store:    st,
		resolver: resolver,
		bus:      bus,
		handler:  &handlers.Handler{Store: st, Resolver: resolver, Bus: bus},
		sessions: make(map[string]*SessionInfo),
	}, nil
}

// Store returns the shared store.
func (r *Registry) Store() store.Store {
	return r.store
}

// Resolver returns the sandbox resolver over the server root.
func (r *Registry) Resolver() *sandbox.Resolver {
	return r.resolver
}

// Bus returns the change bus SLEEP waiters subscribe to.
func (r *Registry) Bus() *changebus.Bus {
	return r.bus
}

// Handler returns the command handler shared by all sessions.
func (r *Registry) Handler() *handlers.Handler {
	return r.handler
}

// Root returns the canonical server root.
func (r *Registry) Root() string {
	return r.resolver.Root()
}

// Close releases the store.
func (r *Registry) Close() error {
	return r.store.Close()
}

// ============================================================================
// Session Tracking
// ============================================================================

// RecordSession registers a connected client.
func (r *Registry) RecordSession(clientAddr, protocol string, connectedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[clientAddr] = &SessionInfo{
		ClientAddr:  clientAddr,
		Protocol:    protocol,
		ConnectedAt: connectedAt,
	}
}

// RemoveSession removes the record for clientAddr.
// Returns true if a session was removed.
func (r *Registry) RemoveSession(clientAddr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[clientAddr]; !ok {
		return false
	}
	delete(r.sessions, clientAddr)
	return true
}

// ListSessions returns a snapshot of the active sessions, oldest first.
func (r *Registry) ListSessions() []*SessionInfo {
	r.mu.RLock()
	sessions := make([]*SessionInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		copied := *s
		sessions = append(sessions, &copied)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].ClientAddr < sessions[j].ClientAddr
		}
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})
	return sessions
}

// CountSessions returns the number of active sessions.
func (r *Registry) CountSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Healthcheck verifies the server root is still reachable through the store.
func (r *Registry) Healthcheck(ctx context.Context) error {
	info, err := r.store.Stat(ctx, r.Root())
	if err != nil {
		return fmt.Errorf("server root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("server root %s is no longer a directory", r.Root())
	}
	return nil
}
