// Package testing provides a conformance suite for store.Store backends.
package testing

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsyncd/pkg/store"
)

// StoreTestSuite tests the Store contract, not implementation details, so
// every backend must pass it unchanged.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) (store.Store, string) {
//	            return mystore.New(), "/root"
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore returns a fresh store and the absolute path of an empty
	// directory inside it. Called once per test for isolation.
	NewStore func(t *testing.T) (store.Store, string)
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Files", suite.RunFileTests)
	t.Run("Directories", suite.RunDirectoryTests)
	t.Run("Listing", suite.RunListTests)
	t.Run("Canonicalize", suite.RunCanonicalizeTests)
	t.Run("Context", suite.RunContextTests)
}

func testContext() context.Context {
	return context.Background()
}

// WriteFile creates path with data through the store.
func WriteFile(t *testing.T, s store.Store, path string, data []byte) {
	t.Helper()
	w, err := s.Create(testContext(), path)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// ReadFile returns the content of path through the store.
func ReadFile(t *testing.T, s store.Store, path string) []byte {
	t.Helper()
	r, err := s.Open(testContext(), path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func requireCode(t *testing.T, err error, code store.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, store.Code(err), "error: %v", err)
}

// ============================================================================
// Files
// ============================================================================

func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("CreateAndOpen", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "a.txt")

		WriteFile(t, s, p, []byte("hello"))
		assert.Equal(t, []byte("hello"), ReadFile(t, s, p))

		info, err := s.Stat(testContext(), p)
		require.NoError(t, err)
		assert.Equal(t, "a.txt", info.Name)
		assert.Equal(t, store.KindFile, info.Kind)
		assert.Equal(t, int64(5), info.Size)
		assert.False(t, info.IsDir())
	})

	t.Run("CreateTruncates", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "a.txt")

		WriteFile(t, s, p, []byte("a much longer first version"))
		WriteFile(t, s, p, []byte("short"))
		assert.Equal(t, []byte("short"), ReadFile(t, s, p))
	})

	t.Run("CreateEmpty", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "empty")

		WriteFile(t, s, p, nil)
		assert.Empty(t, ReadFile(t, s, p))
	})

	t.Run("CreateWithoutParent", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.Create(testContext(), filepath.Join(root, "missing", "a.txt"))
		requireCode(t, err, store.ErrNotFound)
	})

	t.Run("CreateUnderFile", func(t *testing.T) {
		s, root := suite.NewStore(t)
		WriteFile(t, s, filepath.Join(root, "f"), []byte("x"))

		_, err := s.Create(testContext(), filepath.Join(root, "f", "a.txt"))
		requireCode(t, err, store.ErrNotDirectory)
	})

	t.Run("CreateOverDirectory", func(t *testing.T) {
		s, root := suite.NewStore(t)
		require.NoError(t, s.Mkdir(testContext(), filepath.Join(root, "d")))

		_, err := s.Create(testContext(), filepath.Join(root, "d"))
		requireCode(t, err, store.ErrIsDirectory)
	})

	t.Run("OpenMissing", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.Open(testContext(), filepath.Join(root, "nope"))
		requireCode(t, err, store.ErrNotFound)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("OpenDirectory", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.Open(testContext(), root)
		requireCode(t, err, store.ErrIsDirectory)
	})

	t.Run("RemoveFile", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "a.txt")
		WriteFile(t, s, p, []byte("x"))

		require.NoError(t, s.Remove(testContext(), p))
		_, err := s.Stat(testContext(), p)
		requireCode(t, err, store.ErrNotFound)

		requireCode(t, s.Remove(testContext(), p), store.ErrNotFound)
	})

	t.Run("StatMissing", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.Stat(testContext(), filepath.Join(root, "nope"))
		requireCode(t, err, store.ErrNotFound)
	})
}

// ============================================================================
// Directories
// ============================================================================

func (suite *StoreTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("MkdirAndRmdir", func(t *testing.T) {
		s, root := suite.NewStore(t)
		d := filepath.Join(root, "d")

		require.NoError(t, s.Mkdir(testContext(), d))
		info, err := s.Stat(testContext(), d)
		require.NoError(t, err)
		assert.Equal(t, store.KindDir, info.Kind)
		assert.Zero(t, info.Size)

		require.NoError(t, s.Rmdir(testContext(), d))
		_, err = s.Stat(testContext(), d)
		requireCode(t, err, store.ErrNotFound)
	})

	t.Run("MkdirExisting", func(t *testing.T) {
		s, root := suite.NewStore(t)
		d := filepath.Join(root, "d")
		require.NoError(t, s.Mkdir(testContext(), d))

		requireCode(t, s.Mkdir(testContext(), d), store.ErrAlreadyExists)

		WriteFile(t, s, filepath.Join(root, "f"), nil)
		requireCode(t, s.Mkdir(testContext(), filepath.Join(root, "f")), store.ErrAlreadyExists)
	})

	t.Run("MkdirWithoutParent", func(t *testing.T) {
		s, root := suite.NewStore(t)
		err := s.Mkdir(testContext(), filepath.Join(root, "a", "b"))
		requireCode(t, err, store.ErrNotFound)

		_, err = s.Stat(testContext(), filepath.Join(root, "a"))
		requireCode(t, err, store.ErrNotFound)
	})

	t.Run("RmdirNotEmpty", func(t *testing.T) {
		s, root := suite.NewStore(t)
		d := filepath.Join(root, "d")
		require.NoError(t, s.Mkdir(testContext(), d))
		WriteFile(t, s, filepath.Join(d, "f"), []byte("x"))

		requireCode(t, s.Rmdir(testContext(), d), store.ErrNotEmpty)
		requireCode(t, s.Remove(testContext(), d), store.ErrNotEmpty)

		// Nothing was removed.
		assert.Equal(t, []byte("x"), ReadFile(t, s, filepath.Join(d, "f")))
	})

	t.Run("RmdirFile", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "f")
		WriteFile(t, s, p, nil)

		requireCode(t, s.Rmdir(testContext(), p), store.ErrNotDirectory)
	})

	t.Run("RmdirMissing", func(t *testing.T) {
		s, root := suite.NewStore(t)
		requireCode(t, s.Rmdir(testContext(), filepath.Join(root, "nope")), store.ErrNotFound)
	})

	t.Run("RemoveEmptyDirectory", func(t *testing.T) {
		s, root := suite.NewStore(t)
		d := filepath.Join(root, "d")
		require.NoError(t, s.Mkdir(testContext(), d))

		require.NoError(t, s.Remove(testContext(), d))
		_, err := s.Stat(testContext(), d)
		requireCode(t, err, store.ErrNotFound)
	})
}

// ============================================================================
// Listing
// ============================================================================

func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("SortedEntries", func(t *testing.T) {
		s, root := suite.NewStore(t)
		WriteFile(t, s, filepath.Join(root, "b.txt"), []byte("bb"))
		WriteFile(t, s, filepath.Join(root, "a.txt"), []byte("a"))
		require.NoError(t, s.Mkdir(testContext(), filepath.Join(root, "c")))

		entries, err := s.ReadDir(testContext(), root)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, "a.txt", entries[0].Name)
		assert.Equal(t, store.KindFile, entries[0].Kind)
		assert.Equal(t, int64(1), entries[0].Size)
		assert.Equal(t, "b.txt", entries[1].Name)
		assert.Equal(t, "c", entries[2].Name)
		assert.Equal(t, store.KindDir, entries[2].Kind)
	})

	t.Run("Empty", func(t *testing.T) {
		s, root := suite.NewStore(t)
		entries, err := s.ReadDir(testContext(), root)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		s, root := suite.NewStore(t)
		p := filepath.Join(root, "f")
		WriteFile(t, s, p, nil)

		_, err := s.ReadDir(testContext(), p)
		requireCode(t, err, store.ErrNotDirectory)
	})

	t.Run("Missing", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.ReadDir(testContext(), filepath.Join(root, "nope"))
		requireCode(t, err, store.ErrNotFound)
	})
}

// ============================================================================
// Canonicalization (sandbox.FS)
// ============================================================================

func (suite *StoreTestSuite) RunCanonicalizeTests(t *testing.T) {
	t.Run("ExistingPath", func(t *testing.T) {
		s, root := suite.NewStore(t)
		d := filepath.Join(root, "d")
		require.NoError(t, s.Mkdir(testContext(), d))

		got, err := s.EvalSymlinks(d)
		require.NoError(t, err)

		want, err := s.EvalSymlinks(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(want, "d"), got)

		info, err := s.Lstat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingPath", func(t *testing.T) {
		s, root := suite.NewStore(t)
		_, err := s.EvalSymlinks(filepath.Join(root, "nope"))
		assert.Error(t, err)

		_, err = s.Lstat(filepath.Join(root, "nope"))
		assert.Error(t, err)
	})
}

// ============================================================================
// Context
// ============================================================================

func (suite *StoreTestSuite) RunContextTests(t *testing.T) {
	s, root := suite.NewStore(t)
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := s.Open(ctx, filepath.Join(root, "a"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Create(ctx, filepath.Join(root, "a"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Mkdir(ctx, filepath.Join(root, "d")), context.Canceled)
	assert.ErrorIs(t, s.Remove(ctx, root), context.Canceled)
	assert.ErrorIs(t, s.Rmdir(ctx, root), context.Canceled)
	_, err = s.Stat(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ReadDir(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
