package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 2 * time.Second

// RedisStore keeps ledger facts in Redis so several hosts sharing one
// deployment see the same trial state. Read failures are logged and
// reported as absent; the ledger then falls back to defaults, which is the
// contract the core expects from its persistence layer.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore wraps an existing client, scoping all keys to the given
// partition. The connection is verified with a ping.
func NewRedisStore(ctx context.Context, client *redis.Client, partition string, logger *slog.Logger) (*RedisStore, error) {
	if partition == "" {
		partition = DefaultPartition
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis store: ping failed: %w", err)
	}
	return &RedisStore{
		client: client,
		prefix: "betagate:" + partition + ":",
		logger: logger.With(slog.String("component", "redis_store"), slog.String("partition", partition)),
	}, nil
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		r.logger.Warn("redis get failed, treating value as absent",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	return val, true
}

func (r *RedisStore) set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		r.logger.Error("redis set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// GetBool returns the stored boolean for key, or absent.
func (r *RedisStore) GetBool(key string) (bool, bool) {
	s, ok := r.get(key)
	if !ok {
		return false, false
	}
	return decodeBool(s)
}

// GetFloat returns the stored float for key, or absent.
func (r *RedisStore) GetFloat(key string) (float64, bool) {
	s, ok := r.get(key)
	if !ok {
		return 0, false
	}
	return decodeFloat(s)
}

// GetTime returns the stored timestamp for key, or absent.
func (r *RedisStore) GetTime(key string) (time.Time, bool) {
	s, ok := r.get(key)
	if !ok {
		return time.Time{}, false
	}
	return decodeTime(s)
}

// GetString returns the stored string for key, or absent.
func (r *RedisStore) GetString(key string) (string, bool) {
	return r.get(key)
}

// SetBool stores a boolean value.
func (r *RedisStore) SetBool(key string, value bool) { r.set(key, encodeBool(value)) }

// SetFloat stores a float value.
func (r *RedisStore) SetFloat(key string, value float64) { r.set(key, encodeFloat(value)) }

// SetTime stores a timestamp value.
func (r *RedisStore) SetTime(key string, value time.Time) { r.set(key, encodeTime(value)) }

// SetString stores a string value.
func (r *RedisStore) SetString(key string, value string) { r.set(key, value) }

// Remove deletes a key. Removing an absent key is a no-op.
func (r *RedisStore) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("redis del failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
