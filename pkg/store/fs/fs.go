// Package fs provides the local filesystem Store backend.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/marmos91/fsyncd/pkg/store"
)

// Config holds the options of the filesystem backend.
type Config struct {
	// Root is the directory served to clients. It is created if missing.
	Root string

	// FileMode is the permission of files created by PUT.
	FileMode os.FileMode

	// DirMode is the permission of directories created by MKDIR and of the
	// root when it has to be created.
	DirMode os.FileMode
}

// FSStore implements store.Store on the host filesystem.
//
// It is a thin layer over afero.OsFs: symbolic links are evaluated with
// filepath.EvalSymlinks so the sandbox sees the real layout of the disk.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same file race at the
// OS level.
type FSStore struct {
	*store.AferoStore
	root string
}

// NewFSStore creates the root directory if needed and returns the store.
//
// Parameters:
//   - ctx: Context for cancellation (checked before touching the disk)
//   - cfg: Backend configuration
//
// Returns:
//   - *FSStore: Initialized store
//   - error: If the root cannot be created or is not a directory
func NewFSStore(ctx context.Context, cfg Config) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem store: root is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0o755
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("filesystem store: resolve root: %w", err)
	}

	if err := os.MkdirAll(root, cfg.DirMode); err != nil {
		return nil, fmt.Errorf("filesystem store: create root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("filesystem store: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem store: root %q is not a directory", root)
	}

	base := store.NewAferoStore(afero.NewOsFs(), store.Options{
		Name:         "filesystem",
		FileMode:     cfg.FileMode,
		DirMode:      cfg.DirMode,
		EvalSymlinks: filepath.EvalSymlinks,
	})

	return &FSStore{AferoStore: base, root: root}, nil
}

// Root returns the absolute root directory.
func (s *FSStore) Root() string {
	return s.root
}
