package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(3, time.Second)
	limiter.now = func() time.Time { return clock }
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(context.Background(), owner)
		require.NoError(t, err)
		assert.True(t, allowed, "call %d", i+1)
	}

	allowed, err := limiter.Allow(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, allowed)

	other, err := limiter.Allow(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, other)

	clock = clock.Add(time.Second)
	allowed, err = limiter.Allow(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLocalLimiterEvictsIdleOwners(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(1, time.Second)
	limiter.now = func() time.Time { return clock }

	_, err := limiter.Allow(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Len(t, limiter.limiters, 1)

	clock = clock.Add(time.Minute)
	_, err = limiter.Allow(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, limiter.limiters, 1)
}
