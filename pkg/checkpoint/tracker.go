package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"redditcrawler/pkg/logger"
)

// ErrCursorRegression is returned when a page would move the cursor
// backwards or leave it in place, which would re-fetch the same page forever.
var ErrCursorRegression = errors.New("cursor did not advance")

// Tracker owns the cursor of one subreddit for the length of a crawl and
// writes every transition through to its Store.
type Tracker struct {
	store     Store
	subreddit string
	epoch     int64
	state     State
	resumed   bool
	logger    logger.Logger
}

// NewTracker creates a tracker. A zero epoch selects DefaultEpoch.
func NewTracker(store Store, subreddit string, epoch int64, log logger.Logger) *Tracker {
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Tracker{
		store:     store,
		subreddit: subreddit,
		epoch:     epoch,
		state:     NotStarted(),
		logger:    log.WithField("subreddit", subreddit),
	}
}

// Begin loads the stored state and moves it to InProgress. A subreddit
// without a checkpoint starts at the epoch; an exhausted one resumes from
// its last cursor so new submissions are picked up.
func (t *Tracker) Begin(ctx context.Context) (State, error) {
	stored, err := t.store.Load(ctx, t.subreddit)
	if err != nil {
		return State{}, fmt.Errorf("load checkpoint for %s: %w", t.subreddit, err)
	}

	var next State
	switch stored.Status {
	case StatusNotStarted:
		next = InProgress(t.epoch)
		t.resumed = false
	case StatusInProgress, StatusExhausted:
		next = InProgress(stored.Cursor)
		t.resumed = true
	default:
		return State{}, fmt.Errorf("%w: %q", ErrInvalidState, stored.Status)
	}

	if next != stored {
		if err := t.store.Save(ctx, t.subreddit, next); err != nil {
			return State{}, fmt.Errorf("save checkpoint for %s: %w", t.subreddit, err)
		}
	}
	t.state = next

	t.logger.InfoWithFields("Checkpoint ready", map[string]interface{}{
		"resumed": t.resumed,
		"cursor":  next.Cursor,
		"from":    next.CursorTime(),
	})
	return next, nil
}

// Resumed reports whether Begin found an existing checkpoint
func (t *Tracker) Resumed() bool { return t.resumed }

// State returns the current state
func (t *Tracker) State() State { return t.state }

// Cursor returns the current cursor
func (t *Tracker) Cursor() int64 { return t.state.Cursor }

// Advance moves the cursor to the created_utc of the last record of a
// persisted page and writes it through.
func (t *Tracker) Advance(ctx context.Context, lastCreatedUTC int64) error {
	if t.state.Status != StatusInProgress {
		return fmt.Errorf("%w: advance from %s", ErrInvalidState, t.state)
	}
	if lastCreatedUTC <= t.state.Cursor {
		return fmt.Errorf("%w: %d <= %d", ErrCursorRegression, lastCreatedUTC, t.state.Cursor)
	}

	next := InProgress(lastCreatedUTC)
	if err := t.store.Save(ctx, t.subreddit, next); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", t.subreddit, err)
	}
	t.state = next
	return nil
}

// MarkExhausted records that an empty page was returned at the current cursor.
func (t *Tracker) MarkExhausted(ctx context.Context) error {
	next := Exhausted(t.state.Cursor)
	if err := t.store.Save(ctx, t.subreddit, next); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", t.subreddit, err)
	}
	t.state = next
	return nil
}
