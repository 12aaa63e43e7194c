package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"conforma/internal/rules/metrics"
	"conforma/internal/rules/models"
)

const activeSnapshotKeyPrefix = "ruleset:active:"

// Inner is the store a CachedStore decorates.
type Inner interface {
	Create(ctx context.Context, ruleset *models.Ruleset) error
	Find(ctx context.Context, code string, version int) (*models.Ruleset, error)
	ListVersions(ctx context.Context, code string) ([]*models.Ruleset, error)
	ListActiveVersions(ctx context.Context, code string) ([]*models.Ruleset, error)
	Activate(ctx context.Context, code string, version int, now time.Time) error
	Deprecate(ctx context.Context, code string, version int, now time.Time) error
}

// CachedStore decorates a ruleset store with a Redis snapshot of the active
// version per code, the read every derivation performs. Cache failures
// degrade to the inner store; a slow load beats a failed derivation.
// Lifecycle writes invalidate the snapshot before returning.
type CachedStore struct {
	Inner
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type CachedOption func(*CachedStore)

func WithCacheLogger(logger *slog.Logger) CachedOption {
	return func(c *CachedStore) {
		c.logger = logger
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *CachedStore) {
		c.metrics = m
	}
}

// NewCached wraps inner with a Redis active-snapshot cache.
func NewCached(inner Inner, client *redis.Client, ttl time.Duration, opts ...CachedOption) *CachedStore {
	c := &CachedStore{Inner: inner, client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedStore) ListActiveVersions(ctx context.Context, code string) ([]*models.Ruleset, error) {
	key := activeSnapshotKeyPrefix + code

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []*models.Ruleset
		if unmarshalErr := json.Unmarshal(raw, &cached); unmarshalErr == nil {
			c.recordHit()
			return cached, nil
		}
		// Unreadable snapshot: fall through to the inner store and rewrite it.
	case !errors.Is(err, redis.Nil):
		c.log(ctx, "ruleset cache read failed", "ruleset_code", code, "error", err)
	}
	c.recordMiss()

	versions, err := c.Inner.ListActiveVersions(ctx, code)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(versions); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
			c.log(ctx, "ruleset cache write failed", "ruleset_code", code, "error", setErr)
		}
	}
	return versions, nil
}

func (c *CachedStore) Activate(ctx context.Context, code string, version int, now time.Time) error {
	if err := c.Inner.Activate(ctx, code, version, now); err != nil {
		return err
	}
	c.invalidate(ctx, code)
	return nil
}

func (c *CachedStore) Deprecate(ctx context.Context, code string, version int, now time.Time) error {
	if err := c.Inner.Deprecate(ctx, code, version, now); err != nil {
		return err
	}
	c.invalidate(ctx, code)
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, code string) {
	if err := c.client.Del(ctx, activeSnapshotKeyPrefix+code).Err(); err != nil {
		// Stale reads self-resolve at TTL expiry; log so operators can see it.
		c.log(ctx, "ruleset cache invalidation failed", "ruleset_code", code, "error", err)
	}
}

func (c *CachedStore) log(ctx context.Context, msg string, attributes ...any) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, attributes...)
	}
}

func (c *CachedStore) recordHit() {
	if c.metrics != nil {
		c.metrics.RecordCacheHit()
	}
}

func (c *CachedStore) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}
}
