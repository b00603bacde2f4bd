package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/fsyncd/pkg/store"
	storefs "github.com/marmos91/fsyncd/pkg/store/fs"
	"github.com/marmos91/fsyncd/pkg/store/memory"
)

// filesystemOptions are the options under storage.filesystem.
type filesystemOptions struct {
	FileMode os.FileMode `mapstructure:"file_mode"`
	DirMode  os.FileMode `mapstructure:"dir_mode"`
}

// memoryOptions are the options under storage.memory. There are none yet;
// decoding still rejects unknown keys.
type memoryOptions struct{}

// CreateStore creates the storage backend selected by cfg.Type.
//
// This factory function uses the Type field to determine which backend to
// create, then decodes the type-specific options from the corresponding map
// and passes them to the backend's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/store/fs (host directory)
//   - "memory": Uses pkg/store/memory (volatile, for tests and scratch servers)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Storage configuration
//
// Returns:
//   - store.Store: Initialized backend
//   - string: The root directory to serve, as the backend sees it
//   - error: Configuration or initialization error
func CreateStore(ctx context.Context, cfg *StorageConfig) (store.Store, string, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemStore(ctx, cfg)
	case "memory":
		return createMemoryStore(ctx, cfg)
	default:
		return nil, "", fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}

// createFilesystemStore creates a store over a host directory.
func createFilesystemStore(ctx context.Context, cfg *StorageConfig) (store.Store, string, error) {
	var opts filesystemOptions
	if err := decodeOptions(cfg.Filesystem, &opts); err != nil {
		return nil, "", fmt.Errorf("failed to decode filesystem storage options: %w", err)
	}

	st, err := storefs.NewFSStore(ctx, storefs.Config{
		Root:     cfg.Root,
		FileMode: opts.FileMode,
		DirMode:  opts.DirMode,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create filesystem store: %w", err)
	}

	return st, st.Root(), nil
}

// createMemoryStore creates a volatile in-memory store.
func createMemoryStore(ctx context.Context, cfg *StorageConfig) (store.Store, string, error) {
	var opts memoryOptions
	if err := decodeOptions(cfg.Memory, &opts); err != nil {
		return nil, "", fmt.Errorf("failed to decode memory storage options: %w", err)
	}

	st, err := memory.NewMemoryStore(ctx, cfg.Root)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create memory store: %w", err)
	}

	return st, st.Root(), nil
}

// decodeOptions decodes a backend option map into out, rejecting unknown
// keys. Permission bits may be given as numbers or octal strings ("0644").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  fileModeHook,
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// fileModeHook parses octal strings into os.FileMode.
func fileModeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(os.FileMode(0)) {
		return data, nil
	}

	mode, err := strconv.ParseUint(data.(string), 8, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid file mode %q: %w", data, err)
	}
	return os.FileMode(mode), nil
}
