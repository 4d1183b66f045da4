package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgard/transcriptbot/internal/config"
)

var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// redisBackend implements Backend on a Redis server. Leases are plain keys
// holding the owner token with a native expiry.
type redisBackend struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBackend connects to the Redis server named by cfg and pings it.
func NewRedisBackend(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
	}

	logger.Info("Redis connected", "addr", cfg.RedisAddr(), "db", cfg.RedisDB)
	return newRedisBackend(client, logger), nil
}

func newRedisBackend(client *redis.Client, logger *slog.Logger) *redisBackend {
	return &redisBackend{
		client: client,
		logger: logger.With("component", "store", "driver", "redis"),
	}
}

func (r *redisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()

	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound

	case isContextErr(err):
		r.logger.WarnContext(ctx, "Context timeout or cancellation while reading key", "key", key, "error", err)
		return nil, err

	case err != nil:
		r.logger.ErrorContext(ctx, "Error reading key", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, nil
}

func (r *redisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		if isContextErr(err) {
			return err
		}
		r.logger.ErrorContext(ctx, "Error writing key", "key", key, "error", err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *redisBackend) AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		if isContextErr(err) {
			return false, err
		}
		return false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return ok, nil
}

func (r *redisBackend) ExtendLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		if isContextErr(err) {
			return false, err
		}
		return false, fmt.Errorf("failed to extend lease %s: %w", key, err)
	}
	return res == 1, nil
}

func (r *redisBackend) ReleaseLease(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
		if isContextErr(err) {
			return err
		}
		return fmt.Errorf("failed to release lease %s: %w", key, err)
	}
	return nil
}

// PurgeExpiredLeases returns zero: Redis expires lease keys itself.
func (r *redisBackend) PurgeExpiredLeases(context.Context) (int64, error) {
	return 0, nil
}

func (r *redisBackend) RunMaintenance(ctx context.Context) error {
	r.logger.DebugContext(ctx, "No maintenance needed for redis backend")
	return nil
}

func (r *redisBackend) Close() error {
	return r.client.Close()
}
