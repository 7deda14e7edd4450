package crawler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditcrawler/internal/testutil"
	"redditcrawler/pkg/docstore/memory"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
)

func newTestBackfill(archive *fakeArchive, store *memory.Store) *Backfill {
	return NewBackfill(archive, store, BackfillOptions{
		BatchSize:   100,
		MinComments: 6,
		MaxAttempts: 3,
		Logger:      logger.NewTestLogger(),
	})
}

func seed(t *testing.T, store *memory.Store, subreddit string, subs []pushshift.Submission) {
	t.Helper()
	require.NoError(t, store.UpsertSubmissions(context.Background(), subreddit, subs))
}

func withComments(n int, numComments int) []pushshift.Submission {
	subs := make([]pushshift.Submission, n)
	for i := range subs {
		subs[i] = testutil.NewTestSubmission(fmt.Sprintf("s%03d", i), int64(1451606401+i), numComments)
	}
	return subs
}

func TestBackfillShortCircuitsSmallThreads(t *testing.T) {
	archive := newFakeArchive()
	store := memory.New()
	seed(t, store, "ethtrader", withComments(10, 5))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.NoError(t, err)

	assert.Empty(t, archive.commentCalls())
	assert.Equal(t, 10, stats.ShortCircuited)
	assert.Equal(t, 10, stats.Processed)
	assert.Zero(t, stats.Fetched)

	for i := 0; i < 10; i++ {
		got, ok := store.Get("ethtrader", fmt.Sprintf("s%03d", i))
		require.True(t, ok)
		assert.Equal(t, 1, got.CommentsScrapped)
		assert.NotNil(t, got.Comments)
		assert.Empty(t, got.Comments)
	}
}

func TestBackfillFetchesComments(t *testing.T) {
	archive := newFakeArchive()
	archive.comments["s000"] = []pushshift.Comment{
		testutil.NewTestComment("c1", "first"),
		testutil.NewTestComment("c2", "second"),
	}
	store := memory.New()
	seed(t, store, "ethtrader", withComments(2, 6))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"s000", "s001"}, archive.commentCalls())
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.Flushes)

	got, _ := store.Get("ethtrader", "s000")
	require.Len(t, got.Comments, 2)
	assert.Equal(t, "second", got.Comments[1].Raw["body"])

	empty, _ := store.Get("ethtrader", "s001")
	assert.True(t, empty.Backfilled())
	assert.Empty(t, empty.Comments)
}

func TestBackfillLeavesDoneRecordsAlone(t *testing.T) {
	archive := newFakeArchive()
	store := memory.New()
	subs := withComments(3, 50)
	for i := range subs {
		subs[i] = subs[i].WithComments([]pushshift.Comment{testutil.NewTestComment("old", "kept")})
	}
	seed(t, store, "ethtrader", subs)
	before := store.Upserts()

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.AlreadyDone)
	assert.Equal(t, 3, stats.Processed)
	assert.Zero(t, stats.Flushes)
	assert.Equal(t, before, store.Upserts())
	assert.Empty(t, archive.commentCalls())
}

func TestBackfillSkip(t *testing.T) {
	archive := newFakeArchive()
	store := memory.New()
	seed(t, store, "ethtrader", withComments(10, 8))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 4)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, 6, stats.Scanned)
	assert.Equal(t, 6, stats.Processed)
	calls := archive.commentCalls()
	require.Len(t, calls, 6)
	assert.Equal(t, "s004", calls[0])

	untouched, _ := store.Get("ethtrader", "s003")
	assert.False(t, untouched.Backfilled())

	t.Run("past the end", func(t *testing.T) {
		stats, err := newTestBackfill(newFakeArchive(), store).Run(context.Background(), "ethtrader", 50)
		require.NoError(t, err)
		assert.Equal(t, 10, stats.Skipped)
		assert.Zero(t, stats.Scanned)
	})
}

func TestBackfillFlushCounts(t *testing.T) {
	for _, n := range []int{0, 1, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			store := memory.New()
			if n > 0 {
				seed(t, store, "ethtrader", withComments(n, 0))
			}
			stats, err := newTestBackfill(newFakeArchive(), store).Run(context.Background(), "ethtrader", 0)
			require.NoError(t, err)

			want := (n + 99) / 100
			assert.Equal(t, want, stats.Flushes)
			assert.Equal(t, n, stats.ShortCircuited)
		})
	}
}

func TestBackfillRetriesThenContinues(t *testing.T) {
	archive := newFakeArchive()
	archive.failIDs["s001"] = errs.FromStatus(502, "bad gateway")
	store := memory.New()
	seed(t, store, "ethtrader", withComments(3, 10))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"s000", "s001", "s001", "s001", "s002"}, archive.commentCalls())
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.Fetched)

	failed, _ := store.Get("ethtrader", "s001")
	assert.False(t, failed.Backfilled(), "a failed record is left for the next pass")
}

func TestBackfillMissingThreadContinues(t *testing.T) {
	archive := newFakeArchive()
	archive.failIDs["s001"] = errs.FromStatus(404, "not found")
	store := memory.New()
	seed(t, store, "ethtrader", withComments(5, 10))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"s000", "s001", "s002", "s003", "s004"}, archive.commentCalls())
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 4, stats.Fetched)

	missing, _ := store.Get("ethtrader", "s001")
	assert.False(t, missing.Backfilled())
	for _, id := range []string{"s000", "s002", "s003", "s004"} {
		got, _ := store.Get("ethtrader", id)
		assert.True(t, got.Backfilled(), id)
	}
}

func TestBackfillFatalErrorFlushesPending(t *testing.T) {
	archive := newFakeArchive()
	archive.failIDs["s002"] = errs.FromStatus(401, "unauthorized")
	store := memory.New()
	seed(t, store, "ethtrader", withComments(5, 10))

	stats, err := newTestBackfill(archive, store).Run(context.Background(), "ethtrader", 0)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))

	assert.Equal(t, []string{"s000", "s001", "s002"}, archive.commentCalls())
	assert.Equal(t, 1, stats.Flushes)
	for _, id := range []string{"s000", "s001"} {
		got, _ := store.Get("ethtrader", id)
		assert.True(t, got.Backfilled(), id)
	}
	rest, _ := store.Get("ethtrader", "s003")
	assert.False(t, rest.Backfilled())
}

func TestBackfillCancellationFlushesPending(t *testing.T) {
	store := memory.New()
	seed(t, store, "ethtrader", withComments(5, 10))

	ctx, cancel := context.WithCancel(context.Background())
	archive := newFakeArchive()
	calls := 0
	cancelling := CommentFetcherFunc(func(ctx context.Context, id string) ([]pushshift.Comment, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return archive.FetchSubmissionComments(ctx, id)
	})

	b := NewBackfill(cancelling, store, BackfillOptions{Logger: logger.NewNopLogger()})
	stats, err := b.Run(ctx, "ethtrader", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.Flushes)

	got, _ := store.Get("ethtrader", "s001")
	assert.True(t, got.Backfilled())
}
