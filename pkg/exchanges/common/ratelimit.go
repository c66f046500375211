package common

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing REST calls so a retry storm cannot trip the
// exchange's per-second request cap.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given burst.
// A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a request slot is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil || rl.limiter == nil {
		return nil
	}
	return rl.limiter.Wait(ctx)
}

// Allow reports whether a request could be sent right now, consuming the slot if so.
func (rl *RateLimiter) Allow() bool {
	if rl == nil || rl.limiter == nil {
		return true
	}
	return rl.limiter.Allow()
}
