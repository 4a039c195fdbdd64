package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nastyazhadan/trading-hub/shared/infra/redis"
)

const placeOrderRateLimitPrefix = "rate:order:place:"

// OrderRateLimiter allows limit placements per owner in a fixed window.
type OrderRateLimiter struct {
	client redis.Client
	limit  int64
	window time.Duration
}

func NewOrderRateLimiter(client redis.Client, limit int64, window time.Duration) *OrderRateLimiter {
	return &OrderRateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (r *OrderRateLimiter) Allow(ctx context.Context, ownerID uuid.UUID) (bool, error) {
	key := placeOrderRateLimitPrefix + ownerID.String()

	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, fmt.Errorf("rate limiter incr: %w", err)
	}

	// The window starts with the first placement, later ones must not extend it.
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window); err != nil {
			return false, fmt.Errorf("rate limiter expire: %w", err)
		}
	}

	return count <= r.limit, nil
}
