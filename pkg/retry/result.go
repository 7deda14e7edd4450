package retry

import (
	"context"
	"errors"

	errs "redditcrawler/pkg/errors"
)

// Kind tells the retry loop what to do with an attempt's outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindRetryable
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single attempt: Success(v), Retryable(err) or Fatal(err).
type Result[T any] struct {
	Value T
	Err   error
	Kind  Kind
}

// Success wraps a value produced by a successful attempt.
func Success[T any](v T) Result[T] {
	return Result[T]{Value: v, Kind: KindSuccess}
}

// Retryable marks err as transient; the loop backs off and tries again.
func Retryable[T any](err error) Result[T] {
	return Result[T]{Err: err, Kind: KindRetryable}
}

// Fatal marks err as terminal; the loop stops and returns it unchanged.
func Fatal[T any](err error) Result[T] {
	return Result[T]{Err: err, Kind: KindFatal}
}

// Classify turns a conventional (value, error) pair into a Result using the
// error taxonomy: typed retryable errors and untyped errors are retried,
// context errors and every other typed error are fatal.
func Classify[T any](v T, err error) Result[T] {
	if err == nil {
		return Success(v)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal[T](err)
	}
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		if errs.IsRetryable(apiErr.Type) {
			return Retryable[T](err)
		}
		return Fatal[T](err)
	}
	return Retryable[T](err)
}

// Ok reports whether the attempt succeeded.
func (r Result[T]) Ok() bool {
	return r.Kind == KindSuccess
}
