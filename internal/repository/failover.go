package repository

import (
	"context"
	"sync/atomic"
	"time"

	"p5glab/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverRateLimiter prefers the primary (Redis) limiter and degrades to the
// fallback when it errors, retrying the primary after a recovery interval.
type FailoverRateLimiter struct {
	primary   domain.RateLimiter
	fallback  domain.RateLimiter
	logger    *zerolog.Logger
	isDown    atomic.Bool
	downSince atomic.Int64
}

const recoveryInterval = time.Minute

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		ok, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return ok, nil
		}
		r.logger.Error().Err(err).Msg("primary rate limiter failed, falling back to memory")
		r.isDown.Store(true)
		r.downSince.Store(time.Now().UnixNano())
	}

	// Probe the primary again once the recovery interval has passed.
	if r.isDown.Load() && time.Since(time.Unix(0, r.downSince.Load())) > recoveryInterval {
		ok, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return ok, nil
		}
		r.downSince.Store(time.Now().UnixNano())
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
