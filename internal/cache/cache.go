// Package cache provides the read-through key/value store shared by the
// social graph client, the image fetcher and the catalog client.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache stores string values with an optional TTL. A ttl of zero means the
// entry never expires.
//
// Implementations never surface backend failures: an unreachable backend
// reads as a miss and a failed write is logged and dropped.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// GetJSON reads key and decodes it into a T. Undecodable entries are treated
// as misses.
func GetJSON[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	return &v, true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("skipping cache write", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, string(data), ttl)
}

type counters struct {
	hits    metric.Int64Counter
	misses  metric.Int64Counter
	errors  metric.Int64Counter
	backend metric.MeasurementOption
}

func newCounters(backend string) counters {
	meter := otel.Meter("github.com/meroku/framecaster/internal/cache")
	hits, _ := meter.Int64Counter("cache.hits", metric.WithDescription("Cache lookups that found a live entry"))
	misses, _ := meter.Int64Counter("cache.misses", metric.WithDescription("Cache lookups that found nothing"))
	errs, _ := meter.Int64Counter("cache.errors", metric.WithDescription("Backend failures treated as misses"))
	return counters{
		hits:    hits,
		misses:  misses,
		errors:  errs,
		backend: metric.WithAttributes(attribute.String("backend", backend)),
	}
}

func (c counters) hit(ctx context.Context)  { c.hits.Add(ctx, 1, c.backend) }
func (c counters) miss(ctx context.Context) { c.misses.Add(ctx, 1, c.backend) }
func (c counters) fail(ctx context.Context) { c.errors.Add(ctx, 1, c.backend) }
