package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	redisdal "github.com/garrymei/minimodules-order/internal/dal/redis"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// Metric names tracked per tenant.
const (
	MetricOrders = "orders"
)

// Collaborator enforces tenant quotas and tracks usage. The order core only
// calls these two methods; quota administration lives elsewhere.
type Collaborator interface {
	EnforceQuota(ctx context.Context, tenantID, metric string) error
	IncrementUsage(ctx context.Context, tenantID, metric string, amount int64, meta map[string]string) error
}

// RedisCollaborator counts usage in Redis, one counter per tenant, metric and
// calendar month. Limits come from config; a zero or missing limit means
// unlimited.
type RedisCollaborator struct {
	client *redisdal.Client
}

func NewRedisCollaborator(client *redisdal.Client) *RedisCollaborator {
	return &RedisCollaborator{client: client}
}

func key(tenantID, metric string) string {
	return fmt.Sprintf("usage:%s:%s:%s", tenantID, metric, time.Now().UTC().Format("200601"))
}

// EnforceQuota fails with TENANT_QUOTA_EXCEEDED when the tenant's counter has
// reached the configured limit for the metric.
func (c *RedisCollaborator) EnforceQuota(ctx context.Context, tenantID, metric string) error {
	limit := viper.GetInt64("quotas." + metric)
	if limit <= 0 {
		return nil
	}

	used, err := c.client.RDB().Get(ctx, key(tenantID, metric)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		// Quota enforcement must not take the order path down with it.
		slog.Warn("Quota lookup failed, allowing request", "tenant_id", tenantID, "metric", metric, "error", err)

		return nil
	}

	if used >= limit {
		return errs.TenantQuotaExceeded(fmt.Sprintf("quota for %s exhausted", metric))
	}

	return nil
}

// IncrementUsage bumps the tenant's counter. Fire-and-forget from the
// caller's perspective; errors are surfaced for logging only.
func (c *RedisCollaborator) IncrementUsage(ctx context.Context, tenantID, metric string, amount int64, meta map[string]string) error {
	k := key(tenantID, metric)

	if err := c.client.RDB().IncrBy(ctx, k, amount).Err(); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}

	// Counters expire well after the month rolls over.
	if err := c.client.RDB().Expire(ctx, k, 62*24*time.Hour).Err(); err != nil {
		slog.Warn("Failed to set usage counter expiry", "key", k, "error", err)
	}

	return nil
}
