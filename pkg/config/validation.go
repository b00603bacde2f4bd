package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that cannot
// be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.Fsync.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	tls := cfg.Adapters.Fsync.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("adapters.fsync.tls: cert_file and key_file must be set together")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.Fsync.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the fsync adapter", cfg.Server.Metrics.Port)
	}

	if cfg.Watch.Enabled && cfg.Storage.Type != "filesystem" {
		return fmt.Errorf("watch: requires the filesystem storage type, got %q", cfg.Storage.Type)
	}

	if cfg.Storage.Type == "filesystem" {
		// The backend creates a missing root, but a file in its place is a
		// configuration mistake.
		info, err := os.Stat(cfg.Storage.Root)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return fmt.Errorf("storage.root: %w", err)
		case !info.IsDir():
			return fmt.Errorf("storage.root: %q is not a directory", cfg.Storage.Root)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
