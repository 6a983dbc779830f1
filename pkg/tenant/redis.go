package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-io/tessera/pkg/api"
)

const defaultRedisURL = "redis://localhost:6379"

// RedisDirectory wraps a Directory with a Redis-backed TTL cache so all
// replicas of the backend share one tenant cache. Cache failures fall
// through to the underlying directory; Redis being down degrades
// latency, never correctness.
type RedisDirectory struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDirectory connects to Redis and wraps next with a shared cache.
func NewRedisDirectory(next Directory, url string, ttl time.Duration) (*RedisDirectory, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisDirectory{next: next, client: client, ttl: ttl}, nil
}

// Close closes the underlying Redis client.
func (d *RedisDirectory) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Resolve returns the cached tenant when present, otherwise delegates
// and populates the cache.
func (d *RedisDirectory) Resolve(ctx context.Context, hint string) (*api.Tenant, error) {
	if data, err := d.client.Get(ctx, tenantCacheKey(hint)).Bytes(); err == nil {
		var t api.Tenant
		if err := json.Unmarshal(data, &t); err == nil {
			return &t, nil
		}
		// Corrupt entry: drop it and fall through.
		d.client.Del(ctx, tenantCacheKey(hint))
	}

	t, err := d.next.Resolve(ctx, hint)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return t, nil
	}
	if err := d.client.Set(ctx, tenantCacheKey(hint), payload, d.ttl).Err(); err != nil {
		slog.Warn("tenant cache write failed", "hint", hint, "error", err)
	}

	return t, nil
}

func tenantCacheKey(hint string) string {
	return "tenant:dir:" + hint
}
