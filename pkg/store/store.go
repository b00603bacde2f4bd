// Package store defines the filesystem capability the protocol handlers use.
//
// Every path passed to a Store is absolute and has already been validated by
// the sandbox resolver. Stores never interpret client input.
package store

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/fsyncd/pkg/sandbox"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store provides the filesystem operations behind the protocol commands.
//
// Implementations report domain failures as *StoreError so handlers can
// render a stable message regardless of backend. The embedded sandbox.FS
// lets the resolver canonicalize paths against the same filesystem the
// store operates on.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writers to the same file race at the file level; the store does
// not serialize them.
type Store interface {
	sandbox.FS

	// Name returns the backend name used in logs ("filesystem", "memory").
	Name() string

	// Open returns a reader for a regular file.
	//
	// Errors: ErrNotFound, ErrIsDirectory.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create creates or truncates a regular file and returns a writer for
	// it. The parent directory must exist; it is never created implicitly.
	//
	// Errors: ErrNotFound (parent missing), ErrNotDirectory (parent is a
	// file), ErrIsDirectory (path is a directory).
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Remove deletes a file or an empty directory.
	//
	// Errors: ErrNotFound, ErrNotEmpty.
	Remove(ctx context.Context, path string) error

	// Mkdir creates a single directory.
	//
	// Errors: ErrAlreadyExists, ErrNotFound (parent missing),
	// ErrNotDirectory (parent is a file).
	Mkdir(ctx context.Context, path string) error

	// Rmdir deletes an empty directory.
	//
	// Errors: ErrNotFound, ErrNotDirectory, ErrNotEmpty.
	Rmdir(ctx context.Context, path string) error

	// Stat describes an entry, following symbolic links.
	//
	// Errors: ErrNotFound.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ReadDir lists a directory sorted by name.
	//
	// Errors: ErrNotFound, ErrNotDirectory.
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)

	// Close releases backend resources.
	Close() error
}

// ============================================================================
// Types
// ============================================================================

// Kind is the type of a directory entry as reported to clients.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// FileInfo describes one entry.
type FileInfo struct {
	Name    string
	Kind    Kind
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (fi *FileInfo) IsDir() bool {
	return fi.Kind == KindDir
}
