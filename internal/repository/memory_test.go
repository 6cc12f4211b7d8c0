package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.CheckRateLimit(ctx, "alice", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := limiter.CheckRateLimit(ctx, "alice", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "sixth attempt exceeds limit")

	// Other keys are unaffected.
	ok, err = limiter.CheckRateLimit(ctx, "bob", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryRateLimiter_WindowReset(t *testing.T) {
	limiter := NewMemoryRateLimiter()
	ctx := context.Background()

	ok, err := limiter.CheckRateLimit(ctx, "carol", 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = limiter.CheckRateLimit(ctx, "carol", 1, time.Millisecond)
	assert.False(t, ok)

	time.Sleep(5 * time.Millisecond)

	ok, err = limiter.CheckRateLimit(ctx, "carol", 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "window expired, counter reset")
}
