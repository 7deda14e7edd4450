package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"redditcrawler/internal/batcher"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
	"redditcrawler/pkg/retry"
)

const (
	DefaultBatchSize   = 100
	DefaultMinComments = 6
	DefaultCooldown    = 10 * time.Second
	DefaultMaxAttempts = 3
)

// BackfillOptions configures a Backfill loop
type BackfillOptions struct {
	BatchSize int
	// Submissions with fewer comments are marked done without a fetch
	MinComments int
	// Cooldown is the pause before a failed submission is tried again
	Cooldown    time.Duration
	MaxAttempts int
	Logger      logger.Logger
	RunID       string
}

// BackfillStats counts what one backfill pass did
type BackfillStats struct {
	Scanned        int
	Skipped        int
	Processed      int
	ShortCircuited int
	Fetched        int
	AlreadyDone    int
	Failed         int
	Flushes        int
}

// Backfill attaches comments to every stored submission of a subreddit
type Backfill struct {
	client      CommentFetcher
	docs        SubmissionStore
	policy      *retry.Policy
	batchSize   int
	minComments int
	logger      logger.Logger
}

// NewBackfill creates the comment backfill loop
func NewBackfill(client CommentFetcher, docs SubmissionStore, opts BackfillOptions) *Backfill {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = logger.ForComponent(log, "backfill")
	if opts.RunID != "" {
		log = log.WithField("run_id", opts.RunID)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MinComments <= 0 {
		opts.MinComments = DefaultMinComments
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	return &Backfill{
		client: client,
		docs:   docs,
		policy: &retry.Policy{
			MaxAttempts: opts.MaxAttempts,
			Backoff:     &retry.ConstantBackoff{Delay: opts.Cooldown},
			Logger:      log,
		},
		batchSize:   opts.BatchSize,
		minComments: opts.MinComments,
		logger:      log,
	}
}

// Run scans the collection of subreddit in store order, skipping the first
// skip records. Updates are written in batches; the remainder is written
// before Run returns, including when it returns an error.
func (b *Backfill) Run(ctx context.Context, subreddit string, skip int) (BackfillStats, error) {
	log := b.logger.WithField("subreddit", subreddit)
	var stats BackfillStats
	start := time.Now()

	if skip < 0 {
		skip = 0
	}
	total, err := b.docs.Count(ctx, subreddit)
	if err != nil {
		return stats, err
	}
	stats.Skipped = skip
	if int64(skip) > total {
		stats.Skipped = int(total)
	}

	batch := batcher.New(b.batchSize, func(ctx context.Context, subs []pushshift.Submission) error {
		return b.docs.UpsertSubmissions(ctx, subreddit, subs)
	}, log)

	log.InfoWithFields("Starting getting comments", map[string]interface{}{
		"total": total,
		"skip":  skip,
	})

	scanErr := b.docs.Scan(ctx, subreddit, skip, func(sub pushshift.Submission) error {
		stats.Scanned++
		return b.process(ctx, log, sub, batch, &stats)
	})

	// persist progress even when the scan was cancelled or hit a fatal error
	flushCtx := ctx
	if ctx.Err() != nil {
		flushCtx = context.WithoutCancel(ctx)
	}
	flushErr := batch.Flush(flushCtx)
	stats.Flushes = batch.Flushes()

	log.InfoWithFields("Finished getting comments", map[string]interface{}{
		"scanned":         stats.Scanned,
		"processed":       stats.Processed,
		"fetched":         stats.Fetched,
		"short_circuited": stats.ShortCircuited,
		"already_done":    stats.AlreadyDone,
		"failed":          stats.Failed,
		"flushes":         stats.Flushes,
		"elapsed":         time.Since(start),
	})

	if scanErr != nil {
		return stats, errors.Join(scanErr, flushErr)
	}
	return stats, flushErr
}

func (b *Backfill) process(ctx context.Context, log logger.Logger, sub pushshift.Submission, batch *batcher.Batch[pushshift.Submission], stats *BackfillStats) error {
	if sub.Backfilled() {
		stats.AlreadyDone++
		stats.Processed++
		return nil
	}

	if sub.NumComments < b.minComments {
		stats.ShortCircuited++
		stats.Processed++
		return batch.Add(ctx, sub.WithComments([]pushshift.Comment{}))
	}

	log.DebugWithFields("Searching for comments", map[string]interface{}{
		"submission_id": sub.ID,
		"num_comments":  sub.NumComments,
	})
	comments, err := retry.DoWithResult(ctx, b.policy, func(ctx context.Context) ([]pushshift.Comment, error) {
		return b.client.FetchSubmissionComments(ctx, sub.ID)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case retry.IsExhausted(err), errs.Is(err, errs.ErrorTypeNotFound):
		stats.Failed++
		log.ErrorWithFields("Giving up on submission", map[string]interface{}{
			"submission_id": sub.ID,
			"error":         err.Error(),
			"error_type":    string(errs.TypeOf(err)),
		})
		return nil
	default:
		return fmt.Errorf("comments of %s: %w", sub.ID, err)
	}

	stats.Fetched++
	stats.Processed++
	return batch.Add(ctx, sub.WithComments(comments))
}
