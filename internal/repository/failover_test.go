package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLimiter struct {
	calls int
}

func (f *failingLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.calls++
	return false, errors.New("connection refused")
}

func TestFailoverRateLimiter_FallsBack(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary := &failingLimiter{}
	fallback := NewMemoryRateLimiter()

	limiter := NewFailoverRateLimiter(primary, fallback, &logger)
	ctx := context.Background()

	ok, err := limiter.CheckRateLimit(ctx, "alice", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "fallback serves the request")
	assert.Equal(t, 1, primary.calls)

	// Primary is marked down; subsequent calls skip it until recovery.
	_, err = limiter.CheckRateLimit(ctx, "alice", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls)

	// Fallback still enforces the limit.
	ok, err = limiter.CheckRateLimit(ctx, "alice", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
