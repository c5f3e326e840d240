package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cryptopay-go/internal/models"
)

var ErrKeyNotFound = errors.New("key not found")

// Backend is a flat, namespaced byte store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key in the backend's namespace.
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg models.KVConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		backend, err := OpenSQLite(ctx, cfg.Path, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case "redis":
		backend, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported kv backend %q", cfg.Backend)
	}
}
