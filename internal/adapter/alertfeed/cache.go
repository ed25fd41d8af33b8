package alertfeed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/hazard-report-validator/internal/domain"
	"github.com/couchcryptid/hazard-report-validator/internal/observability"
)

// SnapshotKey is the Redis key holding the shared alert snapshot.
const SnapshotKey = "hazard:alerts:snapshot"

// CachedFeed shares one alert snapshot between service replicas through
// Redis. A snapshot older than ttl is refetched from the inner feed. Redis
// failures fall through to the inner feed so the cache never removes
// evidence that would otherwise be available.
type CachedFeed struct {
	inner   domain.AlertFeed
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedFeed creates a Redis-backed cache decorator around an alert feed.
func NewCachedFeed(inner domain.AlertFeed, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedFeed {
	return &CachedFeed{
		inner:   inner,
		redis:   client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedFeed) ActiveAlerts(ctx context.Context) ([]domain.OfficialAlert, error) {
	alerts, err := c.load(ctx)
	switch {
	case err == nil:
		c.metrics.AlertCache.WithLabelValues("hit").Inc()
		return alerts, nil
	case errors.Is(err, redis.Nil):
		c.metrics.AlertCache.WithLabelValues("miss").Inc()
	default:
		c.metrics.AlertCache.WithLabelValues("error").Inc()
		c.logger.Warn("alert snapshot read failed, using feed directly", "error", err)
	}

	alerts, err = c.inner.ActiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, alerts)
	return alerts, nil
}

func (c *CachedFeed) load(ctx context.Context) ([]domain.OfficialAlert, error) {
	data, err := c.redis.Get(ctx, SnapshotKey).Bytes()
	if err != nil {
		return nil, err
	}
	var alerts []domain.OfficialAlert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *CachedFeed) store(ctx context.Context, alerts []domain.OfficialAlert) {
	data, err := json.Marshal(alerts)
	if err != nil {
		c.logger.Warn("encode alert snapshot failed", "error", err)
		return
	}
	if err := c.redis.Set(ctx, SnapshotKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("alert snapshot write failed", "error", err)
	}
}

// NewRedisClient connects to the Redis instance at url and verifies it is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
