// Package ratelimit paces requests to the search and Reddit APIs.
//
// TokenBucket wraps golang.org/x/time/rate with a per-minute rate and a
// burst size taken from the rate_limit config section. Every remote call
// waits on the limiter before it is sent:
//
//	limiter := ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
