package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loaded is a resolved config file and what came out of it.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config path and decodes it over Default. A missing file
// is not an error: defaults are used and a warning says so. Secrets are left
// empty; see LoadWithSecrets.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: path, Config: Default()}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}}
		return loaded, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	loaded.Exists = true
	loaded.Config, loaded.Warnings, err = parseFile(path, string(content), loaded.Config)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return loaded, nil
}

// parseFile lets a .yaml/.yml extension force the YAML decoder; other files
// are sniffed by Parse.
func parseFile(path string, content string, base Config) (Config, []Warning, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if strings.TrimSpace(content) != "" {
			return parseYAML(content, base)
		}
	}
	return Parse(content, base)
}

// LoadWithSecrets runs Load and then overlays REHEARSE_* secrets from the
// environment and envFiles.
func LoadWithSecrets(explicitPath string, envFiles ...string) (Loaded, error) {
	loaded, err := Load(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	secrets, err := LoadSecrets(envFiles...)
	if err != nil {
		return Loaded{}, err
	}
	loaded.Config.Secrets = secrets
	loaded.Warnings = append(loaded.Warnings, SecretWarnings(loaded.Config)...)
	return loaded, nil
}
