package config

import (
	"context"
	"fmt"

	"github.com/marmos91/fsyncd/internal/logger"
	"github.com/marmos91/fsyncd/pkg/registry"
)

// InitializeRegistry creates the storage backend described by cfg and the
// registry that shares it between connections.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: The complete fsyncd configuration
//
// Returns:
//   - *registry.Registry: Registry serving the configured root
//   - error: Storage or sandbox initialization error
func InitializeRegistry(ctx context.Context, cfg *Config) (*registry.Registry, error) {
	st, root, err := CreateStore(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(st, root)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	logger.Info("Serving %s storage rooted at %s", cfg.Storage.Type, reg.Root())
	return reg, nil
}
