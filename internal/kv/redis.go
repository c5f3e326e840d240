package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const clearScanCount = 500

// RedisBackend prefixes every key with "<namespace>:".
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func OpenRedis(ctx context.Context, addr, password string, db int, namespace string) (*RedisBackend, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	zap.L().Info("Opening kv mirror", zap.String("backend", "redis"), zap.String("addr", addr), zap.Int("db", db))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("Failed to close redis client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return NewRedisBackend(client, namespace), nil
}

func NewRedisBackend(client *redis.Client, namespace string) *RedisBackend {
	return &RedisBackend{client: client, prefix: redisPrefix(namespace)}
}

func redisPrefix(namespace string) string {
	if namespace == "" {
		return ""
	}
	return namespace + ":"
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("unable to read key %s: %w", key, err)
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("unable to write key %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		return fmt.Errorf("unable to delete key %s: %w", key, err)
	}
	return nil
}

// Clear scans and deletes the namespace. It refuses to flush an unprefixed database.
func (b *RedisBackend) Clear(ctx context.Context) error {
	if b.prefix == "" {
		return fmt.Errorf("refusing to clear redis without a namespace")
	}

	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+"*", clearScanCount).Result()
		if err != nil {
			return fmt.Errorf("unable to scan namespace: %w", err)
		}
		if len(keys) > 0 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("unable to delete keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
