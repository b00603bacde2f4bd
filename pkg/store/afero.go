package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Options configures an AferoStore.
type Options struct {
	// Name is the backend name returned by Name.
	Name string

	// FileMode is the permission used for files created by Create.
	FileMode os.FileMode

	// DirMode is the permission used for directories created by Mkdir.
	DirMode os.FileMode

	// EvalSymlinks resolves symbolic links. When nil, links are not
	// supported by the backend and a path is canonical once it exists.
	EvalSymlinks func(path string) (string, error)
}

// AferoStore implements Store on top of an afero.Fs.
//
// Backends differ in how they report edge cases (OsFs returns ENOTEMPTY,
// MemMapFs happily removes a populated directory), so every operation checks
// its preconditions explicitly before touching the filesystem. Both backends
// then return the same ErrorCode for the same situation.
//
// Thread Safety:
// Safe for concurrent use if the underlying afero.Fs is.
type AferoStore struct {
	fs   afero.Fs
	opts Options
}

// NewAferoStore wraps fsys.
func NewAferoStore(fsys afero.Fs, opts Options) *AferoStore {
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	if opts.DirMode == 0 {
		opts.DirMode = 0o755
	}
	if opts.Name == "" {
		opts.Name = fsys.Name()
	}
	return &AferoStore{fs: fsys, opts: opts}
}

// Fs returns the underlying filesystem.
func (s *AferoStore) Fs() afero.Fs {
	return s.fs
}

func (s *AferoStore) Name() string {
	return s.opts.Name
}

// ============================================================================
// sandbox.FS
// ============================================================================

func (s *AferoStore) EvalSymlinks(path string) (string, error) {
	if s.opts.EvalSymlinks != nil {
		return s.opts.EvalSymlinks(path)
	}
	if _, err := s.fs.Stat(path); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

func (s *AferoStore) Lstat(path string) (fs.FileInfo, error) {
	if lst, ok := s.fs.(afero.Lstater); ok {
		info, _, err := lst.LstatIfPossible(path)
		return info, err
	}
	return s.fs.Stat(path)
}

func (s *AferoStore) Readlink(path string) (string, error) {
	if lr, ok := s.fs.(afero.LinkReader); ok {
		return lr.ReadlinkIfPossible(path)
	}
	return "", &fs.PathError{Op: "readlink", Path: path, Err: afero.ErrNoReadlink}
}

// ============================================================================
// Store
// ============================================================================

func (s *AferoStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, wrapError(path, err)
	}
	if info.IsDir() {
		return nil, newError(ErrIsDirectory, path)
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, wrapError(path, err)
	}
	return f, nil
}

func (s *AferoStore) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.checkParent(path); err != nil {
		return nil, err
	}

	if info, err := s.fs.Stat(path); err == nil && info.IsDir() {
		return nil, newError(ErrIsDirectory, path)
	}

	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, s.opts.FileMode)
	if err != nil {
		return nil, wrapError(path, err)
	}
	return f, nil
}

func (s *AferoStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := s.Lstat(path)
	if err != nil {
		return wrapError(path, err)
	}
	if info.IsDir() {
		if err := s.checkEmpty(path); err != nil {
			return err
		}
	}

	return wrapError(path, s.fs.Remove(path))
}

func (s *AferoStore) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.Lstat(path); err == nil {
		return newError(ErrAlreadyExists, path)
	}
	if err := s.checkParent(path); err != nil {
		return err
	}

	return wrapError(path, s.fs.Mkdir(path, s.opts.DirMode))
}

func (s *AferoStore) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := s.Lstat(path)
	if err != nil {
		return wrapError(path, err)
	}
	if !info.IsDir() {
		return newError(ErrNotDirectory, path)
	}
	if err := s.checkEmpty(path); err != nil {
		return err
	}

	return wrapError(path, s.fs.Remove(path))
}

func (s *AferoStore) Stat(ctx context.Context, path string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, wrapError(path, err)
	}
	fi := toFileInfo(info)
	return &fi, nil
}

func (s *AferoStore) ReadDir(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, wrapError(path, err)
	}
	if !info.IsDir() {
		return nil, newError(ErrNotDirectory, path)
	}

	// afero.ReadDir sorts by name.
	infos, err := afero.ReadDir(s.fs, path)
	if err != nil {
		return nil, wrapError(path, err)
	}

	entries := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, toFileInfo(info))
	}
	return entries, nil
}

func (s *AferoStore) Close() error {
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *AferoStore) checkParent(path string) error {
	parent := filepath.Dir(path)
	info, err := s.fs.Stat(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &StoreError{Code: ErrNotFound, Message: "parent directory does not exist", Path: parent, Err: err}
		}
		return wrapError(parent, err)
	}
	if !info.IsDir() {
		return newError(ErrNotDirectory, parent)
	}
	return nil
}

func (s *AferoStore) checkEmpty(path string) error {
	empty, err := afero.IsEmpty(s.fs, path)
	if err != nil {
		return wrapError(path, err)
	}
	if !empty {
		return newError(ErrNotEmpty, path)
	}
	return nil
}

func toFileInfo(info fs.FileInfo) FileInfo {
	fi := FileInfo{
		Name:    info.Name(),
		Kind:    KindFile,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if info.IsDir() {
		fi.Kind = KindDir
		fi.Size = 0
	}
	return fi
}
