package docstore

import (
	"context"
	"errors"
	"fmt"

	"redditcrawler/pkg/checkpoint"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/pushshift"
)

// Store persists submissions per subreddit collection and crawl cursors in
// crawl_state. Every write is an upsert keyed by submission id.
type Store interface {
	// UpsertSubmissions writes subs in order, inserting new ids and
	// replacing existing ones. The batch is applied atomically.
	UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error

	// Scan calls fn for every stored submission of subreddit in insertion
	// order, skipping the first skip records. Returning ErrStopScan from fn
	// ends the scan without error.
	Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error

	// Count returns the number of stored submissions of subreddit
	Count(ctx context.Context, subreddit string) (int64, error)

	// Close releases the underlying connection
	Close() error

	checkpoint.Store
}

// ErrStopScan ends a Scan early
var ErrStopScan = errors.New("stop scan")

// CollectionName is the collection or logical table holding a subreddit
func CollectionName(subreddit string) string {
	return subreddit + "_history"
}

// StoreError represents a storage operation error
type StoreError struct {
	Op  string // Operation being performed
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the driver error followed by a storage typed error so
// callers can test both with errors.Is/As.
func (e *StoreError) Unwrap() []error {
	return []error{e.Err, errs.New(errs.ErrorTypeStorage, e.Op)}
}

// Wrap returns a StoreError for op, or nil when err is nil
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
