// Package store persists small JSON documents by key in a local directory or
// in Redis.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/logging"
)

// ErrNotFound is returned by Load when key has never been saved.
var ErrNotFound = errors.New("store: key not found")

// Store is a key/value repository of JSON documents.
type Store interface {
	Load(ctx context.Context, key string, dst any) error
	Save(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by cfg.
func Open(cfg config.StoreConfig, redisPassword string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		dir := strings.TrimSpace(cfg.Path)
		if dir == "" {
			stateDir, err := logging.StateDir()
			if err != nil {
				return nil, fmt.Errorf("resolve store dir: %w", err)
			}
			dir = filepath.Join(stateDir, "store")
		}
		return NewFileStore(dir), nil
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: redisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("store: invalid key %q", key)
	}
	return nil
}
