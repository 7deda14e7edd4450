package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/flatfile"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/reddit"
)

// HotLister returns the current hot listing of a subreddit
type HotLister interface {
	Hot(ctx context.Context, subreddit string, limit int) ([]reddit.Post, error)
}

// Sampler returns the thread view of a submission and its comment samples
type Sampler interface {
	Samples(ctx context.Context, submissionID string, n int) (reddit.Post, reddit.Samples, error)
}

// Files is the flat file layout the scraper appends to
type Files interface {
	Prepare(subreddit string) error
	LoadBlacklist(subreddit string) (map[string]bool, error)
	AppendSubmissions(subreddit string, rows []flatfile.Row) error
	AppendBlacklist(subreddit string, ids []string) error
}

// Options configures a Scraper
type Options struct {
	HotLimit   int
	SampleSize int
	Logger     logger.Logger
	RunID      string
}

// Result summarises one subreddit
type Result struct {
	Subreddit   string
	Listed      int
	Blacklisted int
	Written     int
	Failed      int
	Elapsed     time.Duration
}

// Scraper writes the unseen submissions of the hot listing to flat files
type Scraper struct {
	listing    HotLister
	sampler    Sampler
	files      Files
	hotLimit   int
	sampleSize int
	runID      string
	logger     logger.Logger
}

// NewScraper creates a scraper over the given listing, sampler and files
func NewScraper(listing HotLister, sampler Sampler, files Files, opts Options) *Scraper {
	if opts.HotLimit <= 0 || opts.HotLimit > reddit.HotLimit {
		opts.HotLimit = reddit.HotLimit
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = reddit.DefaultSampleSize
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	return &Scraper{
		listing:    listing,
		sampler:    sampler,
		files:      files,
		hotLimit:   opts.HotLimit,
		sampleSize: opts.SampleSize,
		runID:      opts.RunID,
		logger:     logger.ForComponent(log, "live").WithField("run_id", opts.RunID),
	}
}

// RunAll scrapes each subreddit in order. A subreddit that fails is
// reported and the next one is tried; auth failures and cancellation stop
// the run.
func (s *Scraper) RunAll(ctx context.Context, subreddits []string) ([]Result, error) {
	results := make([]Result, 0, len(subreddits))
	var failures []error

	logger.LogComponentStart(s.logger, "live", map[string]interface{}{
		"subreddits":  subreddits,
		"hot_limit":   s.hotLimit,
		"sample_size": s.sampleSize,
	})

	for _, sub := range subreddits {
		res, err := s.Run(ctx, sub)
		results = append(results, res)
		if err == nil {
			continue
		}
		if isFatal(ctx, err) {
			logger.LogComponentStop(s.logger, "live", err.Error())
			return results, err
		}
		s.logger.ErrorWithFields("subreddit failed", map[string]interface{}{
			"subreddit": sub,
			"error":     err.Error(),
		})
		failures = append(failures, err)
	}
	logger.LogComponentStop(s.logger, "live", "done")
	return results, errors.Join(failures...)
}

// Run scrapes one subreddit. Submissions already on the blacklist are
// skipped. Each new submission is written and then blacklisted, so a
// submission that fails is retried by the next run.
func (s *Scraper) Run(ctx context.Context, subreddit string) (Result, error) {
	start := time.Now()
	res := Result{Subreddit: subreddit}
	log := s.logger.WithField("subreddit", subreddit)

	if err := s.files.Prepare(subreddit); err != nil {
		return res, errs.Wrap(errs.ErrorTypeStorage, "prepare files", err)
	}
	seen, err := s.files.LoadBlacklist(subreddit)
	if err != nil {
		return res, errs.Wrap(errs.ErrorTypeStorage, "load blacklist", err)
	}

	posts, err := s.listing.Hot(ctx, subreddit, s.hotLimit)
	if err != nil {
		return res, err
	}
	res.Listed = len(posts)

	log.InfoWithFields("scraping hot listing", map[string]interface{}{
		"listed":      len(posts),
		"blacklisted": len(seen),
	})

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		if seen[post.ID] {
			res.Blacklisted++
			continue
		}

		row, err := s.row(ctx, post)
		if err != nil {
			if isFatal(ctx, err) {
				res.Elapsed = time.Since(start)
				return res, err
			}
			res.Failed++
			log.WarnWithFields("skipping submission", map[string]interface{}{
				"id":         post.ID,
				"error":      err.Error(),
				"error_type": string(errs.TypeOf(err)),
			})
			continue
		}

		if err := s.files.AppendSubmissions(subreddit, []flatfile.Row{row}); err != nil {
			return res, errs.Wrap(errs.ErrorTypeStorage, "append submission", err)
		}
		if err := s.files.AppendBlacklist(subreddit, []string{post.ID}); err != nil {
			return res, errs.Wrap(errs.ErrorTypeStorage, "append blacklist", err)
		}
		seen[post.ID] = true
		res.Written++
	}

	res.Elapsed = time.Since(start)
	log.InfoWithFields("finished subreddit", map[string]interface{}{
		"written":     res.Written,
		"blacklisted": res.Blacklisted,
		"failed":      res.Failed,
		"elapsed":     res.Elapsed.String(),
	})
	return res, nil
}

func (s *Scraper) row(ctx context.Context, post reddit.Post) (flatfile.Row, error) {
	thread, samples, err := s.sampler.Samples(ctx, post.ID, s.sampleSize)
	if err != nil {
		return flatfile.Row{}, err
	}
	comments, err := json.Marshal(samples)
	if err != nil {
		return flatfile.Row{}, fmt.Errorf("encode comments of %s: %w", post.ID, err)
	}

	return flatfile.Row{
		ID:          post.ID,
		CreatedUTC:  post.CreatedUTC,
		Title:       post.Title,
		SelfText:    post.SelfText,
		Score:       post.Score,
		UpvoteRatio: thread.UpvoteRatio,
		Permalink:   thread.Permalink,
		NumComments: post.NumComments,
		Comments:    string(comments),
	}, nil
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	return errs.TypeOf(err) == errs.ErrorTypeAuth
}
