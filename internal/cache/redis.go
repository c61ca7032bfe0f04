package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	rdb     *redis.Client
	metrics counters
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// NewRedis connects lazily; an unreachable server degrades every lookup to
// a miss rather than failing construction.
func NewRedis(opts Options) *Redis {
	return NewRedisWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}))
}

func NewRedisWithClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, metrics: newCounters("redis")}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.metrics.fail(ctx)
			slog.Warn("cache read failed, treating as miss", "key", key, "error", err)
		}
		r.metrics.miss(ctx)
		return "", false
	}
	r.metrics.hit(ctx)
	return value, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		r.metrics.fail(ctx)
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// Ping reports whether the server is reachable. Used at startup for a log
// line only; the cache keeps working (as misses) when it is not.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
