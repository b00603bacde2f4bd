// Package memory provides a volatile in-memory Store backend.
package memory

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/marmos91/fsyncd/pkg/store"
)

// DefaultRoot is the root used when none is configured.
const DefaultRoot = "/"

// MemoryStore implements store.Store using afero.MemMapFs.
//
// This implementation is designed for:
//   - Testing and development
//   - Ephemeral scratch servers
//
// Characteristics:
//   - Volatile: Data lost on restart
//   - No symbolic links: paths are canonical once they exist
//
// Thread Safety:
// Safe for concurrent use (MemMapFs is internally locked).
type MemoryStore struct {
	*store.AferoStore
	root string
}

// NewMemoryStore creates an empty in-memory tree containing only root.
func NewMemoryStore(ctx context.Context, root string) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if root == "" {
		root = DefaultRoot
	}
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("memory store: root %q must be absolute", root)
	}
	root = filepath.Clean(root)

	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("memory store: create root: %w", err)
	}

	return &MemoryStore{
		AferoStore: store.NewAferoStore(fsys, store.Options{Name: "memory"}),
		root:       root,
	}, nil
}

// Root returns the root directory inside the memory filesystem.
func (s *MemoryStore) Root() string {
	return s.root
}
