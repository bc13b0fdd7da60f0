package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "REHEARSE"

// LoadSecrets reads REHEARSE_* secrets from the process environment after
// loading any .env files found. Existing environment variables win over .env.
func LoadSecrets(envFiles ...string) (Secrets, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var secrets Secrets
	if err := envconfig.Process(envPrefix, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("decode %s_* environment: %w", envPrefix, err)
	}
	return secrets, nil
}
