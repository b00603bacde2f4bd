package memory

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fsyncd/pkg/store"
	storetesting "github.com/marmos91/fsyncd/pkg/store/testing"
)

// TestMemoryStore runs the complete Store test suite against MemoryStore.
func TestMemoryStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) (store.Store, string) {
			s, err := NewMemoryStore(context.Background(), "/srv/data")
			if err != nil {
				t.Fatalf("Failed to create MemoryStore: %v", err)
			}
			return s, s.Root()
		},
	}

	suite.Run(t)
}

func TestNewMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoot, s.Root())
	assert.Equal(t, "memory", s.Name())

	_, err = NewMemoryStore(context.Background(), "relative/root")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMemoryStore(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadlinkUnsupported(t *testing.T) {
	s, err := NewMemoryStore(context.Background(), "/srv/data")
	require.NoError(t, err)

	_, err = s.Readlink("/srv/data")
	assert.ErrorIs(t, err, afero.ErrNoReadlink)
}
