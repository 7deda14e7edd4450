package crawler

import (
	"context"
	"time"

	"redditcrawler/pkg/pushshift"
)

// PageFetcher reads one page of the submission search
type PageFetcher interface {
	FetchPage(ctx context.Context, subreddit string, after int64, limit int) ([]pushshift.Submission, error)
}

// CommentFetcher reads every comment of one submission
type CommentFetcher interface {
	FetchSubmissionComments(ctx context.Context, submissionID string) ([]pushshift.Comment, error)
}

// SubmissionWriter persists a page of submissions with upsert semantics
type SubmissionWriter interface {
	UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error
}

// SubmissionStore is what the backfill loop needs from the document store
type SubmissionStore interface {
	SubmissionWriter
	Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error
	Count(ctx context.Context, subreddit string) (int64, error)
}

// PageEvent describes one page after it has been persisted and the cursor
// has moved past it.
type PageEvent struct {
	RunID     string    `json:"run_id"`
	Subreddit string    `json:"subreddit"`
	Page      int       `json:"page"`
	Count     int       `json:"count"`
	FromUTC   int64     `json:"from_utc"`
	ToUTC     int64     `json:"to_utc"`
	Cursor    int64     `json:"cursor"`
	IDs       []string  `json:"ids"`
	At        time.Time `json:"at"`
}

// PageObserver is notified of every persisted page. Errors are logged and do
// not stop the crawl.
type PageObserver interface {
	PagePersisted(ctx context.Context, event PageEvent) error
}

// PageObserverFunc adapts a function to PageObserver
type PageObserverFunc func(ctx context.Context, event PageEvent) error

func (f PageObserverFunc) PagePersisted(ctx context.Context, event PageEvent) error {
	return f(ctx, event)
}

// CommentFetcherFunc adapts a function to CommentFetcher
type CommentFetcherFunc func(ctx context.Context, submissionID string) ([]pushshift.Comment, error)

func (f CommentFetcherFunc) FetchSubmissionComments(ctx context.Context, submissionID string) ([]pushshift.Comment, error) {
	return f(ctx, submissionID)
}
