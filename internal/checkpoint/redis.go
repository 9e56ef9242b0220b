package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the snapshot under a single Redis key.
type RedisBackend struct {
	rdb *redis.Client
	key string
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(url, key string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisBackendWithOptions(opts, key), nil
}

func NewRedisBackendWithOptions(opts *redis.Options, key string) *RedisBackend {
	return &RedisBackend{rdb: redis.NewClient(opts), key: key}
}

// Ping verifies the connection, bounded to three seconds.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.rdb.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotExist
	}
	return data, err
}

func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	return b.rdb.Set(ctx, b.key, data, 0).Err()
}

func (b *RedisBackend) Delete(ctx context.Context) error {
	n, err := b.rdb.Del(ctx, b.key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotExist
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

func (b *RedisBackend) String() string {
	return fmt.Sprintf("redis://%s/%s", b.rdb.Options().Addr, b.key)
}
