// Package changebus is the process wide registry of clients waiting for a
// change in the served tree.
//
// Waiters subscribe with a scope (a path, or the whole tree) and receive at
// most one Event. Publishers never block: an event nobody waits for is lost.
package changebus

import (
	"path/filepath"
	"strings"
	"sync"
)

// Kind is the kind of change an Event reports.
type Kind string

const (
	Created  Kind = "created"
	Modified Kind = "modified"
	Removed  Kind = "removed"
)

// Event describes one completed change.
type Event struct {
	// Path is the absolute path that changed.
	Path string

	Kind Kind
}

// Subscription is a one-shot registration returned by Subscribe.
//
// C receives exactly one Event if the subscription is fulfilled. It is never
// closed, so a cancelled subscription simply never delivers.
type Subscription struct {
	id    uint64
	scope string
	ch    chan Event
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Scope returns the watched path, or "" for the whole tree.
func (s *Subscription) Scope() string {
	return s.scope
}

// Bus fans events out to waiting subscribers.
//
// Thread safety:
// All methods are safe for concurrent use. The internal lock only guards the
// waiter registry and is never held while sending or waiting.
type Bus struct {
	mu      sync.Mutex
	nextID  uint64
	waiters map[uint64]*Subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{waiters: make(map[uint64]*Subscription)}
}

// Subscribe registers a waiter. An empty scope matches every event.
func (b *Bus) Subscribe(scope string) *Subscription {
	if scope != "" {
		scope = filepath.Clean(scope)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		scope: scope,
		ch:    make(chan Event, 1),
	}
	b.waiters[sub.id] = sub
	return sub
}

// Publish delivers ev to every waiter whose scope is the event path or one
// of its ancestors, removing them from the registry. It returns the number
// of waiters notified.
func (b *Bus) Publish(ev Event) int {
	ev.Path = filepath.Clean(ev.Path)

	b.mu.Lock()
	var matched []*Subscription
	for id, sub := range b.waiters {
		if matches(sub.scope, ev.Path) {
			matched = append(matched, sub)
			delete(b.waiters, id)
		}
	}
	b.mu.Unlock()

	// Each channel has room for exactly one event and a subscription is
	// removed before it is sent to, so these sends never block.
	for _, sub := range matched {
		sub.ch <- ev
	}
	return len(matched)
}

// Cancel removes sub without delivering to it. It reports whether the
// subscription was still pending; false means it was already fulfilled or
// cancelled, and an event may be waiting in C.
func (b *Bus) Cancel(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.waiters[sub.id]; !ok {
		return false
	}
	delete(b.waiters, sub.id)
	return true
}

// Len returns the number of pending subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// matches reports whether an event at path concerns a waiter on scope.
func matches(scope, path string) bool {
	if scope == "" || scope == path {
		return true
	}
	prefix := scope
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
