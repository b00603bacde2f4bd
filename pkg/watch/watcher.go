// Package watch publishes changes made to the served tree outside the
// protocol (by local processes, editors, rsync...) to the change bus, so
// sleeping clients are woken by them too.
//
// fsnotify watches are not recursive: the watcher adds every directory under
// the root at startup and each directory created afterwards.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/changebus"
)

// Watcher forwards filesystem notifications under a root to a Bus.
//
// Changes made through the protocol are published by the handlers and show
// up here a second time; a waiter subscribed in between may be woken by the
// echo. That costs a client one extra round trip and never a missed change.
type Watcher struct {
	root    string
	bus     *changebus.Bus
	watcher *fsnotify.Watcher
}

// New starts watching every directory under root.
//
// Parameters:
//   - root: Canonical absolute root, as the sandbox resolver reports it, so
//     published paths match client subscriptions
//   - bus: Destination of the events
//
// Returns an error if the platform watcher cannot be created or the tree
// cannot be walked.
func New(root string, bus *changebus.Bus) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{root: filepath.Clean(root), bus: bus, watcher: fw}
	if err := w.addTree(w.root, false); err != nil {
		_ = fw.Close()
		return nil, err
	}

	logger.Info("Watching %s for external changes (%d directories)", w.root, len(fw.WatchList()))
	return w, nil
}

// Run forwards events until ctx is cancelled or the watcher is closed.
// The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were dropped; wake everybody rather than miss one.
				logger.Warn("fsnotify queue overflow under %s", w.root)
				w.bus.Publish(changebus.Event{Path: w.root, Kind: changebus.Modified})
				continue
			}
			logger.Warn("fsnotify error: %v", err)
		}
	}
}

// Close stops the watcher. Run returns shortly after.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// handle translates one notification.
func (w *Watcher) handle(ev fsnotify.Event) {
	kind, ok := kindOf(ev.Op)
	if !ok {
		return
	}

	path := filepath.Clean(ev.Name)
	if kind == changebus.Created {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			// Files created in the new directory before the watch was added
			// produce no event of their own, so they are published here.
			if err := w.addTree(path, true); err != nil {
				logger.Debug("Cannot watch new directory %s: %v", path, err)
			}
		}
	}

	n := w.bus.Publish(changebus.Event{Path: path, Kind: kind})
	logger.Debug("External change: %s %s (woke %d)", kind, path, n)
}

// kindOf maps an fsnotify operation to a change kind. Chmod is ignored.
// A rename reports the old name; the new name arrives as a Create.
func kindOf(op fsnotify.Op) (changebus.Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return changebus.Created, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return changebus.Removed, true
	case op.Has(fsnotify.Write):
		return changebus.Modified, true
	default:
		return "", false
	}
}

// addTree watches dir and every directory below it. With announce set, the
// entries found below dir are published as created: they appeared before
// their parent was watched.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			// Entries may vanish while walking.
			return nil
		}

		if announce && path != dir {
			w.bus.Publish(changebus.Event{Path: path, Kind: changebus.Created})
		}

		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
