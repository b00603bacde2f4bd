// Package sandbox maps client supplied paths onto absolute paths that are
// guaranteed to stay inside a server root directory.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"
)

// FS is the part of a filesystem the resolver needs to canonicalize paths.
// Both store backends implement it.
type FS interface {
	// EvalSymlinks returns the path with all symbolic links resolved. It
	// fails with an error matching fs.ErrNotExist if any component is
	// missing.
	EvalSymlinks(path string) (string, error)

	// Lstat describes the named entry without following a final symlink.
	Lstat(path string) (fs.FileInfo, error)

	// Readlink returns the target of a symbolic link.
	Readlink(path string) (string, error)
}

// maxLinkHops bounds how many dangling links canonicalize follows.
const maxLinkHops = 40

// Resolver resolves client paths against a working directory and the root.
//
// Resolution is done in two passes. The first folds "." and ".." purely
// syntactically and refuses to pop above the root. The second canonicalizes
// the result against the filesystem (the path itself if it exists, otherwise
// its deepest existing ancestor) and checks the canonical path is still a
// descendant of the canonical root, which catches symbolic links pointing
// out of the tree.
//
// Thread safety:
// A Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	root string
	fs   FS
}

// New returns a resolver for root. The root is made absolute and its
// symbolic links are evaluated once; it must name an existing directory.
func New(root string, fsys FS) (*Resolver, error) {
	if root == "" {
		return nil, errors.New("sandbox root is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	canonical, err := fsys.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize root %q: %w", root, err)
	}

	info, err := fsys.Lstat(canonical)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", canonical, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", canonical)
	}

	return &Resolver{root: canonical, fs: fsys}, nil
}

// Root returns the canonical root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps clientPath to an absolute path inside the root.
//
// A leading "/" makes clientPath relative to the root, anything else is
// relative to cwd, which must itself be a path returned by Resolve (or the
// root). The returned path is canonical: it contains no symbolic links in
// the part that exists on disk.
func (r *Resolver) Resolve(cwd, clientPath string) (string, error) {
	segments, err := r.fold(cwd, clientPath)
	if err != nil {
		return "", err
	}
	return r.canonicalPath(clientPath, segments)
}

// ResolveEntry is Resolve for operations on the named entry itself, such
// as removal. Only the parent is canonicalized; the final component is kept
// as given, so a symbolic link resolves to the link and not its target.
func (r *Resolver) ResolveEntry(cwd, clientPath string) (string, error) {
	segments, err := r.fold(cwd, clientPath)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return r.root, nil
	}

	parent, err := r.canonicalPath(clientPath, segments[:len(segments)-1])
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, segments[len(segments)-1]), nil
}

// fold validates clientPath and folds it onto cwd as segments below the
// root, without touching the filesystem.
func (r *Resolver) fold(cwd, clientPath string) ([]string, error) {
	if err := validate(clientPath); err != nil {
		return nil, err
	}

	var segments []string
	if !strings.HasPrefix(clientPath, "/") {
		base, err := r.segments(cwd)
		if err != nil {
			return nil, err
		}
		segments = base
	}

	for _, seg := range strings.Split(strings.Trim(clientPath, "/"), "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) == 0 {
				return nil, escape(clientPath)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, seg)
		}
	}

	return segments, nil
}

// canonicalPath joins segments onto the root and canonicalizes the result.
// Errors name clientPath.
func (r *Resolver) canonicalPath(clientPath string, segments []string) (string, error) {
	joined := filepath.Join(append([]string{r.root}, segments...)...)
	canonical, err := r.canonicalize(joined, 0)
	if err != nil {
		var perr *PathError
		if errors.As(err, &perr) {
			perr.Path = clientPath
		}
		return "", err
	}
	return canonical, nil
}

// Rel renders an absolute path inside the root the way clients see it,
// with "/" standing for the root.
func (r *Resolver) Rel(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

// Contains reports whether abs is the root or one of its descendants.
func (r *Resolver) Contains(abs string) bool {
	_, err := within(r.root, abs)
	return err == nil
}

// segments splits a working directory into path segments below the root.
func (r *Resolver) segments(cwd string) ([]string, error) {
	if cwd == "" {
		return nil, nil
	}
	rel, err := within(r.root, cwd)
	if err != nil {
		return nil, escape(cwd)
	}
	if rel == "." {
		return nil, nil
	}
	return strings.Split(filepath.ToSlash(rel), "/"), nil
}

// canonicalize evaluates symbolic links along p and verifies the result.
// hops counts the dangling links followed so far.
func (r *Resolver) canonicalize(p string, hops int) (string, error) {
	var tail []string
	dir := p

	for {
		resolved, err := r.fs.EvalSymlinks(dir)
		if err == nil {
			result := filepath.Join(append([]string{resolved}, tail...)...)
			if _, err := within(r.root, result); err != nil {
				return "", escape(p)
			}
			return result, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", fmt.Errorf("canonicalize %q: %w", dir, err)
		}

		// An entry that exists but cannot be evaluated is a dangling
		// symlink. Creating through it writes wherever it points, so the
		// target must canonicalize inside the root.
		if info, lerr := r.fs.Lstat(dir); lerr == nil {
			if info.Mode()&fs.ModeSymlink == 0 || hops >= maxLinkHops {
				return "", escape(p)
			}
			target, err := r.fs.Readlink(dir)
			if err != nil {
				return "", escape(p)
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(dir), target)
			}
			resolved, err := r.canonicalize(target, hops+1)
			if err != nil {
				return "", escape(p)
			}
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", escape(p)
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		dir = parent
	}
}

// within returns p relative to root, or an error if p is outside root.
func within(root, p string) (string, error) {
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside %q", p, root)
	}
	return rel, nil
}

func validate(p string) error {
	switch {
	case p == "":
		return malformed(p, "empty path")
	case strings.IndexByte(p, 0) >= 0:
		return malformed(p, "NUL byte")
	case !utf8.ValidString(p):
		return malformed(p, "invalid UTF-8")
	case strings.Contains(p, "//"):
		return malformed(p, "empty segment")
	}
	return nil
}
