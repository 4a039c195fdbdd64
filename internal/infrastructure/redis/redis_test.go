package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nastyazhadan/trading-hub/internal/domain/models"
	repositoryErrors "github.com/nastyazhadan/trading-hub/shared/errors/repository"
	"github.com/nastyazhadan/trading-hub/shared/infra/redis"
)

type fakeClient struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]int64
	ttls     map[string]time.Duration
	err      error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values:   make(map[string][]byte),
		counters: make(map[string]int64),
		ttls:     make(map[string]time.Duration),
	}
}

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}) error {
	return f.SetWithTTL(ctx, key, value, 0)
}

func (f *fakeClient) SetWithTTL(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeClient) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	value, found := f.values[key]
	if !found {
		return nil, redis.ErrNil
	}
	return value, nil
}

func (f *fakeClient) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeClient) Expire(_ context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ttls[key] = expiration
	return nil
}

func (f *fakeClient) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.values, key)
	delete(f.counters, key)
	return nil
}

func (f *fakeClient) Ping(context.Context) error { return f.err }
func (f *fakeClient) Close() error               { return nil }

func TestOrderRateLimiter(t *testing.T) {
	client := newFakeClient()
	limiter := NewOrderRateLimiter(client, 2, time.Second)
	owner := uuid.New()

	for i, expected := range []bool{true, true, false} {
		allowed, err := limiter.Allow(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, expected, allowed, "call %d", i+1)
	}

	assert.Equal(t, time.Second, client.ttls[placeOrderRateLimitPrefix+owner.String()])

	allowed, err := limiter.Allow(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestOrderRateLimiterError(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("connection refused")

	allowed, err := NewOrderRateLimiter(client, 2, time.Second).Allow(context.Background(), uuid.New())
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	cache := NewPriceCache(client)

	_, err := cache.GetPrice(ctx, "BTC")
	assert.ErrorIs(t, err, repositoryErrors.ErrPriceNotFound)

	observed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tick := models.PriceTick{Symbol: "BTC", Price: decimal.RequireFromString("49000.125"), ObservedAt: observed}
	require.NoError(t, cache.SetPrice(ctx, tick, time.Minute))
	assert.Equal(t, time.Minute, client.ttls[lastPricePrefix+"BTC"])

	got, err := cache.GetPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", got.Symbol)
	assert.True(t, got.Price.Equal(tick.Price))
	assert.True(t, got.ObservedAt.Equal(observed))
}
