package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
	"redditcrawler/pkg/retry"
)

// Phase is a step of the historical crawl of one subreddit
type Phase string

const (
	PhaseInit           Phase = "init"
	PhaseResume         Phase = "resume"
	PhaseStartFromEpoch Phase = "start_from_epoch"
	PhaseFetching       Phase = "fetching"
	PhaseDone           Phase = "done"
)

// HistoryOptions configures a History loop
type HistoryOptions struct {
	PageSize   int
	StartEpoch int64
	Policy     *retry.Policy
	Logger     logger.Logger
	// RunID tags every log line and event; a random one is generated if empty
	RunID string
}

// History walks the submission search of each subreddit forward in time,
// page by page, from its checkpoint until an empty page comes back.
type History struct {
	client    PageFetcher
	docs      SubmissionWriter
	states    checkpoint.Store
	policy    *retry.Policy
	observers []PageObserver
	pageSize  int
	epoch     int64
	runID     string
	logger    logger.Logger
}

// SubredditResult summarises the crawl of one subreddit
type SubredditResult struct {
	Subreddit   string
	Resumed     bool
	StartCursor int64
	EndCursor   int64
	Pages       int
	Records     int
	Elapsed     time.Duration
}

// NewHistory creates the historical fetch loop
func NewHistory(client PageFetcher, docs SubmissionWriter, states checkpoint.Store, opts HistoryOptions) *History {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	policy := opts.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = pushshift.DefaultPageLimit
	}

	return &History{
		client:   client,
		docs:     docs,
		states:   states,
		policy:   policy,
		pageSize: pageSize,
		epoch:    opts.StartEpoch,
		runID:    runID,
		logger:   logger.ForComponent(log, "history").WithField("run_id", runID),
	}
}

// AddObserver registers an observer for persisted pages
func (h *History) AddObserver(o PageObserver) {
	h.observers = append(h.observers, o)
}

// RunID returns the identifier of this run
func (h *History) RunID() string { return h.runID }

// RunAll crawls subreddits in order. The first error stops the run and is
// returned together with the results gathered so far.
func (h *History) RunAll(ctx context.Context, subreddits []string) ([]SubredditResult, error) {
	start := time.Now()
	results := make([]SubredditResult, 0, len(subreddits))
	for _, sub := range subreddits {
		res, err := h.Run(ctx, sub)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}

	total := 0
	for _, r := range results {
		total += r.Records
	}
	h.logger.InfoWithFields("Finished historical crawl", map[string]interface{}{
		"subreddits": len(subreddits),
		"records":    total,
		"elapsed":    time.Since(start),
	})
	return results, nil
}

// Run crawls one subreddit until the search returns an empty page. A page
// is persisted before the cursor moves past it, so a crash re-fetches at
// most the page in flight.
func (h *History) Run(ctx context.Context, subreddit string) (SubredditResult, error) {
	log := h.logger.WithField("subreddit", subreddit)
	result := SubredditResult{Subreddit: subreddit}
	start := time.Now()
	phase := PhaseInit

	tracker := checkpoint.NewTracker(h.states, subreddit, h.epoch, log)
	state, err := tracker.Begin(ctx)
	if err != nil {
		return result, err
	}
	result.Resumed = tracker.Resumed()
	result.StartCursor = state.Cursor
	if result.Resumed {
		phase = h.transition(log, phase, PhaseResume)
	} else {
		phase = h.transition(log, phase, PhaseStartFromEpoch)
	}

	log.InfoWithFields("Starting to scrape", map[string]interface{}{
		"from": state.CursorTime().Format(time.DateTime),
	})

	for {
		if err := ctx.Err(); err != nil {
			result.EndCursor = tracker.Cursor()
			result.Elapsed = time.Since(start)
			return result, err
		}
		phase = h.transition(log, phase, PhaseFetching)

		cursor := tracker.Cursor()
		pageStart := time.Now()
		page, err := retry.DoWithResult(ctx, h.policy, func(ctx context.Context) ([]pushshift.Submission, error) {
			return h.client.FetchPage(ctx, subreddit, cursor, h.pageSize)
		})
		if err != nil {
			result.EndCursor = cursor
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("fetch %s after %d: %w", subreddit, cursor, err)
		}

		if len(page) == 0 {
			if err := tracker.MarkExhausted(ctx); err != nil {
				return result, err
			}
			break
		}

		if err := h.docs.UpsertSubmissions(ctx, subreddit, page); err != nil {
			result.EndCursor = cursor
			result.Elapsed = time.Since(start)
			return result, fmt.Errorf("persist page of %s: %w", subreddit, err)
		}

		first, last := page[0], page[len(page)-1]
		if err := tracker.Advance(ctx, last.CreatedUTC); err != nil {
			return result, err
		}
		result.Pages++
		result.Records += len(page)

		log.InfoWithFields("Scraped submissions", map[string]interface{}{
			"count":   len(page),
			"from":    first.Created().Format(time.DateTime),
			"to":      last.Created().Format(time.DateTime),
			"elapsed": time.Since(pageStart),
		})

		h.notify(ctx, log, PageEvent{
			RunID:     h.runID,
			Subreddit: subreddit,
			Page:      result.Pages,
			Count:     len(page),
			FromUTC:   first.CreatedUTC,
			ToUTC:     last.CreatedUTC,
			Cursor:    tracker.Cursor(),
			IDs:       pageIDs(page),
			At:        time.Now().UTC(),
		})
	}

	h.transition(log, phase, PhaseDone)
	result.EndCursor = tracker.Cursor()
	result.Elapsed = time.Since(start)
	log.InfoWithFields("Finished scraping", map[string]interface{}{
		"pages":   result.Pages,
		"records": result.Records,
		"elapsed": result.Elapsed,
	})
	return result, nil
}

func (h *History) transition(log logger.Logger, from, to Phase) Phase {
	if from != to {
		log.DebugWithFields("phase", map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		})
	}
	return to
}

func (h *History) notify(ctx context.Context, log logger.Logger, event PageEvent) {
	for _, o := range h.observers {
		if err := o.PagePersisted(ctx, event); err != nil {
			log.WarnWithFields("page observer failed", map[string]interface{}{
				"page":  event.Page,
				"error": err.Error(),
			})
		}
	}
}

func pageIDs(page []pushshift.Submission) []string {
	ids := make([]string, len(page))
	for i, s := range page {
		ids[i] = s.ID
	}
	return ids
}
