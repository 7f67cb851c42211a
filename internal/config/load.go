package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// LoadOption overrides file values after parsing.
type LoadOption func(*Config)

// WithServerAddress replaces server.address. An empty address keeps the
// file value.
func WithServerAddress(address string) LoadOption {
	return func(cfg *Config) {
		if address = strings.TrimSpace(address); address != "" {
			cfg.Server.Address = address
		}
	}
}

// Load resolves and reads the config file, applies overrides, and validates
// the result. A missing file yields defaults pointed at the local gaze server.
func Load(explicitPath string, opts ...LoadOption) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}
	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using built-in calibration bounds and server %s",
				resolvedPath, loaded.Config.Server.Address),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, parseErr := Parse(string(content), loaded.Config)
		if parseErr != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, parseErr)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	if len(opts) == 0 {
		return loaded, nil
	}
	for _, opt := range opts {
		opt(&loaded.Config)
	}
	warnings, err := Validate(loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("command-line override: %w", err)
	}
	if !loaded.Exists {
		loaded.Warnings = append(loaded.Warnings, warnings...)
	} else {
		loaded.Warnings = warnings
	}
	return loaded, nil
}
