package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter to its burst
	Reset()
}

// TokenBucket is a token bucket limiter refilling at a steady per-minute rate.
type TokenBucket struct {
	perMinute int
	burst     int
	limiter   *rate.Limiter
}

// NewTokenBucket allows requestsPerMinute requests per minute with bursts of
// up to burst requests.
func NewTokenBucket(requestsPerMinute, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		perMinute: requestsPerMinute,
		burst:     burst,
		limiter:   rate.NewLimiter(perMinute(requestsPerMinute), burst),
	}
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

func (tb *TokenBucket) Allow() bool {
	return tb.limiter.Allow()
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Reset replaces the underlying bucket with a full one
func (tb *TokenBucket) Reset() {
	tb.limiter = rate.NewLimiter(perMinute(tb.perMinute), tb.burst)
}

// Interval is the steady state spacing between requests
func (tb *TokenBucket) Interval() time.Duration {
	if tb.perMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(tb.perMinute)
}

// Unlimited never blocks. Tests and the memory driver use it.
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
