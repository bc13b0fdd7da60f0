package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// configNames are tried in order inside the config directory. The first one
// present on disk wins; when none exist the JSONC name is returned so the
// missing-file warning names the preferred format.
var configNames = []string{"config.jsonc", "config.yaml", "config.yml"}

// ResolvePath picks the config file: an explicit --config path, then
// $REHEARSE_CONFIG, then the rehearse directory under XDG_CONFIG_HOME or
// ~/.config.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if fromEnv := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); fromEnv != "" {
		return fromEnv, nil
	}

	dir, err := configDir()
	if err != nil {
		return "", err
	}
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return filepath.Join(dir, configNames[0]), nil
}

func configDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "rehearse"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "rehearse"), nil
}
