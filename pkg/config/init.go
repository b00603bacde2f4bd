package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# fsyncd Configuration File
#
# Every key can be overridden with an environment variable: upper-case the
# path and join it with underscores behind the FSYNC_ prefix, e.g.
#   FSYNC_LOGGING_LEVEL=DEBUG
#   FSYNC_ADAPTERS_FSYNC_PORT=7000
#
# storage.type is "filesystem" (serve storage.root from disk) or "memory"
# (volatile tree, lost on restart). File modes accept octal strings ("0644").
#
# adapters.fsync.tls enables TLS when both cert_file and key_file are set.
# rate_limit.requests_per_second = 0 disables per-connection rate limiting.

`

// InitConfig writes the default configuration to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists (and force is false) or cannot be written
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the default configuration to path, creating its
// parent directory.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := renderDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// renderDefaultConfig marshals GetDefaultConfig behind the comment header.
func renderDefaultConfig() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(GetDefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal default config: %w", err)
	}

	return buf.Bytes(), nil
}
