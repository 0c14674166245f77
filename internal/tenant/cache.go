package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSource keeps tenant records in Redis in front of another source.
// Redis failures are logged and the inner source is used instead.
type CachedSource struct {
	inner  Source
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewCachedSource wraps inner with a Redis cache. A non-positive ttl uses five minutes.
func NewCachedSource(inner Source, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: "scheduler:tenant:",
		logger: logger.With("component", "tenant_cache"),
	}
}

func (c *CachedSource) key(id string) string {
	return c.prefix + id
}

// Tenant implements Source.
func (c *CachedSource) Tenant(ctx context.Context, id string) (Record, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var r Record
		jsonErr := json.Unmarshal(data, &r)
		if jsonErr == nil {
			return r, nil
		}
		c.logger.WarnContext(ctx, "discarding unreadable cache entry", "tenant_id", id, "error", jsonErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "tenant cache unavailable", "tenant_id", id, "error", err)
	}

	r, err := c.inner.Tenant(ctx, id)
	if err != nil {
		return Record{}, err
	}

	encoded, err := json.Marshal(r)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode tenant record", "tenant_id", id, "error", err)
		return r, nil
	}
	if err := c.client.Set(ctx, c.key(id), encoded, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "failed to cache tenant record", "tenant_id", id, "error", err)
	}
	return r, nil
}

// TenantIDs implements Source.
func (c *CachedSource) TenantIDs(ctx context.Context) ([]string, error) {
	return c.inner.TenantIDs(ctx)
}

// Invalidate drops the cached record of the tenant.
func (c *CachedSource) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
