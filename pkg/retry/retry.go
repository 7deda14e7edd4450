package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"redditcrawler/pkg/config"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
)

// Policy is the single retry policy shared by every crawler loop.
type Policy struct {
	// MaxAttempts caps the number of attempts (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
}

// DefaultPolicy returns a policy with sensible defaults
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		Logger:      logger.NewNopLogger(),
	}
}

// FromConfig builds an exponential policy from the retry section of the config.
func FromConfig(cfg config.RetryConfig, log logger.Logger) *Policy {
	return &Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: &ExponentialBackoff{
			BaseDelay:    cfg.BaseDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			JitterFactor: 0.1,
		},
		Logger: log,
	}
}

// WithMaxAttempts returns a copy of p with a different attempt cap
func (p *Policy) WithMaxAttempts(n int) *Policy {
	cp := *p
	cp.MaxAttempts = n
	return &cp
}

// WithBackoff returns a copy of p with a different backoff strategy
func (p *Policy) WithBackoff(b BackoffStrategy) *Policy {
	cp := *p
	cp.Backoff = b
	return &cp
}

// ExhaustedError is returned when every attempt produced a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from a policy running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Run executes op until it succeeds, returns a fatal result, the attempt cap
// is reached or ctx is done.
func Run[T any](ctx context.Context, p *Policy, op func(ctx context.Context) Result[T]) (T, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	log := p.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		res := op(ctx)
		switch res.Kind {
		case KindSuccess:
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return res.Value, nil
		case KindFatal:
			if res.Err == nil {
				res.Err = errors.New("fatal result without error")
			}
			return zero, res.Err
		}

		if res.Err == nil {
			res.Err = errors.New("retryable result without error")
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": res.Err.Error(),
			})
			return zero, &ExhaustedError{Attempts: attempt, Err: res.Err}
		}

		delay := nextDelay(p.Backoff, attempt, res.Err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, res.Err, delay)
		}
		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": p.MaxAttempts,
			"error":        res.Err.Error(),
			"delay":        delay,
		})

		if err := Wait(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// Do runs op under p, classifying its error with Classify.
func Do(ctx context.Context, p *Policy, op func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) Result[struct{}] {
		return Classify(struct{}{}, op(ctx))
	})
	return err
}

// DoWithResult runs op under p, classifying its error with Classify.
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return Run(ctx, p, func(ctx context.Context) Result[T] {
		return Classify(op(ctx))
	})
}

// nextDelay honours a server supplied Retry-After when it exceeds the backoff.
func nextDelay(b BackoffStrategy, attempt int, err error) time.Duration {
	var delay time.Duration
	if b != nil {
		delay = b.NextDelay(attempt)
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		delay = apiErr.RetryAfter
	}
	return delay
}
