package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditcrawler/internal/testutil"
	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore/memory"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/retry"
)

const epoch = checkpoint.DefaultEpoch

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts: 3,
		Backoff:     &retry.ConstantBackoff{},
		Logger:      logger.NewNopLogger(),
	}
}

func newTestHistory(archive *fakeArchive, store *memory.Store, pageSize int) *History {
	return NewHistory(archive, store, store, HistoryOptions{
		PageSize: pageSize,
		Policy:   fastPolicy(),
		Logger:   logger.NewTestLogger(),
		RunID:    "test-run",
	})
}

func TestHistoryFromEpoch(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 25)...)
	store := memory.New()

	var events []PageEvent
	h := newTestHistory(archive, store, 10)
	h.AddObserver(PageObserverFunc(func(ctx context.Context, e PageEvent) error {
		events = append(events, e)
		return nil
	}))

	res, err := h.Run(context.Background(), "ethtrader")
	require.NoError(t, err)

	assert.False(t, res.Resumed)
	assert.Equal(t, int64(epoch), res.StartCursor)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 25, res.Records)
	assert.Equal(t, int64(epoch+25), res.EndCursor)

	// each request starts exactly at the last record of the previous page
	assert.Equal(t, []int64{epoch, epoch + 10, epoch + 20, epoch + 25}, archive.pageCalls())

	n, err := store.Count(context.Background(), "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)

	state, err := store.Load(context.Background(), "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Exhausted(epoch+25), state)

	require.Len(t, events, 3)
	assert.Equal(t, "test-run", events[0].RunID)
	assert.Equal(t, 1, events[0].Page)
	assert.Equal(t, int64(epoch+1), events[0].FromUTC)
	assert.Equal(t, int64(epoch+10), events[0].ToUTC)
	assert.Equal(t, int64(epoch+10), events[0].Cursor)
	assert.Len(t, events[2].IDs, 5)
}

func TestHistoryCursorFollowsEveryPage(t *testing.T) {
	archive := newFakeArchive()
	archive.add("btc", testutil.NewTestPage("s", epoch, 7)...)
	store := memory.New()

	var cursors []int64
	h := newTestHistory(archive, store, 3)
	h.AddObserver(PageObserverFunc(func(ctx context.Context, e PageEvent) error {
		state, err := store.Load(ctx, "btc")
		require.NoError(t, err)
		cursors = append(cursors, state.Cursor)
		assert.Equal(t, e.ToUTC, state.Cursor)
		return nil
	}))

	_, err := h.Run(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, []int64{epoch + 3, epoch + 6, epoch + 7}, cursors)
}

func TestHistoryRerunIsIdempotent(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 12)...)
	store := memory.New()
	ctx := context.Background()

	_, err := newTestHistory(archive, store, 5).Run(ctx, "ethtrader")
	require.NoError(t, err)

	res, err := newTestHistory(archive, store, 5).Run(ctx, "ethtrader")
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Zero(t, res.Pages)

	n, err := store.Count(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	state, err := store.Load(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Exhausted(epoch+12), state)
}

func TestHistoryPicksUpNewData(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("a", epoch, 4)...)
	store := memory.New()
	ctx := context.Background()

	_, err := newTestHistory(archive, store, 10).Run(ctx, "ethtrader")
	require.NoError(t, err)

	archive.add("ethtrader", testutil.NewTestPage("b", epoch+100, 3)...)
	res, err := newTestHistory(archive, store, 10).Run(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, int64(epoch+4), res.StartCursor)
	assert.Equal(t, int64(epoch+103), res.EndCursor)
}

func TestHistoryPersistFailureKeepsCheckpoint(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 9)...)
	store := memory.New()
	ctx := context.Background()

	writer := &failingWriter{SubmissionWriter: store, ok: 1, err: errors.New("disk full")}
	h := NewHistory(archive, writer, store, HistoryOptions{PageSize: 3, Policy: fastPolicy(), Logger: logger.NewNopLogger()})
	_, err := h.Run(ctx, "ethtrader")
	require.Error(t, err)

	state, err := store.Load(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.InProgress(epoch+3), state, "cursor stops at the last persisted page")

	// the failed page is fetched again and upsert keeps the count exact
	res, err := newTestHistory(archive, store, 3).Run(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, 6, res.Records)

	n, err := store.Count(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestHistoryRetriesTransientErrors(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 2)...)
	archive.failNext(
		errs.FromStatus(503, "unavailable"),
		errs.New(errs.ErrorTypeNetwork, "reset"),
	)
	store := memory.New()

	res, err := newTestHistory(archive, store, 10).Run(context.Background(), "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Len(t, archive.pageCalls(), 4)
}

func TestHistoryFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrorType
	}{
		{"auth", errs.FromStatus(401, "unauthorized"), errs.ErrorTypeAuth},
		{"schema", errs.New(errs.ErrorTypeSchema, "bad envelope"), errs.ErrorTypeSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := newFakeArchive()
			archive.add("ethtrader", testutil.NewTestPage("s", epoch, 2)...)
			archive.failNext(tt.err)

			_, err := newTestHistory(archive, memory.New(), 10).Run(context.Background(), "ethtrader")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
			assert.False(t, retry.IsExhausted(err))
			assert.Len(t, archive.pageCalls(), 1)
		})
	}
}

func TestHistoryExhaustsRetries(t *testing.T) {
	archive := newFakeArchive()
	archive.failNext(
		errs.FromStatus(500, "a"),
		errs.FromStatus(500, "b"),
		errs.FromStatus(500, "c"),
	)
	_, err := newTestHistory(archive, memory.New(), 10).Run(context.Background(), "ethtrader")
	require.Error(t, err)
	assert.True(t, retry.IsExhausted(err))
	assert.Equal(t, errs.ErrorTypeServerError, errs.TypeOf(err))
}

func TestHistoryCancellation(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 20)...)
	store := memory.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newTestHistory(archive, store, 5)
	h.AddObserver(PageObserverFunc(func(ctx context.Context, e PageEvent) error {
		if e.Page == 2 {
			cancel()
		}
		return nil
	}))

	res, err := h.Run(ctx, "ethtrader")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Pages)

	state, err := store.Load(context.Background(), "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.InProgress(epoch+10), state)
}

func TestHistoryObserverErrorsDoNotStop(t *testing.T) {
	archive := newFakeArchive()
	archive.add("ethtrader", testutil.NewTestPage("s", epoch, 4)...)
	log := logger.NewTestLogger()

	h := NewHistory(archive, memory.New(), checkpoint.NewMemoryStore(), HistoryOptions{PageSize: 2, Policy: fastPolicy(), Logger: log})
	h.AddObserver(PageObserverFunc(func(ctx context.Context, e PageEvent) error {
		return fmt.Errorf("broker down")
	}))

	res, err := h.Run(context.Background(), "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.True(t, log.HasMessage("page observer failed"))
}

func TestHistoryRunAll(t *testing.T) {
	archive := newFakeArchive()
	archive.add("a", testutil.NewTestPage("a", epoch, 3)...)
	archive.add("c", testutil.NewTestPage("c", epoch, 1)...)
	store := memory.New()

	t.Run("in order", func(t *testing.T) {
		results, err := newTestHistory(archive, store, 10).RunAll(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].Subreddit, results[1].Subreddit, results[2].Subreddit})
		assert.Equal(t, 3, results[0].Records)
		assert.Zero(t, results[1].Records)
	})

	t.Run("stops at first fatal error", func(t *testing.T) {
		archive.failNext(errs.FromStatus(403, "forbidden"))
		results, err := newTestHistory(archive, memory.New(), 10).RunAll(context.Background(), []string{"a", "c"})
		require.Error(t, err)
		assert.Len(t, results, 1)
	})
}

func TestNewHistoryGeneratesRunID(t *testing.T) {
	h := NewHistory(newFakeArchive(), memory.New(), checkpoint.NewMemoryStore(), HistoryOptions{Logger: logger.NewNopLogger()})
	assert.Len(t, h.RunID(), 36)
	assert.Equal(t, 1000, h.pageSize)
}
