package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/pushshift"
)

// RunStoreSuite exercises the docstore.Store contract against a backend.
// newStore must return an empty store for the given subreddit names.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	ctx := context.Background()

	t.Run("upsert is idempotent", func(t *testing.T) {
		store := newStore(t)
		page := NewTestPage("a", 1000, 5)

		require.NoError(t, store.UpsertSubmissions(ctx, "suite", page))
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", page))

		n, err := store.Count(ctx, "suite")
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		other, err := store.Count(ctx, "other")
		require.NoError(t, err)
		assert.Zero(t, other)
	})

	t.Run("scan keeps insertion order and raw fields", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", NewTestPage("a", 1000, 3)))
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", NewTestPage("b", 2000, 2)))

		var ids []string
		err := store.Scan(ctx, "suite", 0, func(s pushshift.Submission) error {
			ids = append(ids, s.ID)
			assert.Equal(t, "author_"+s.ID, s.Raw["author"])
			assert.False(t, s.Backfilled())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a0", "a1", "a2", "b0", "b1"}, ids)
	})

	t.Run("scan skips", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", NewTestPage("a", 1000, 10)))

		var ids []string
		require.NoError(t, store.Scan(ctx, "suite", 7, func(s pushshift.Submission) error {
			ids = append(ids, s.ID)
			return nil
		}))
		assert.Equal(t, []string{"a7", "a8", "a9"}, ids)

		ids = nil
		require.NoError(t, store.Scan(ctx, "suite", 10, func(s pushshift.Submission) error {
			ids = append(ids, s.ID)
			return nil
		}))
		assert.Empty(t, ids)

		// a negative skip reads from the start
		ids = nil
		require.NoError(t, store.Scan(ctx, "suite", -3, func(s pushshift.Submission) error {
			ids = append(ids, s.ID)
			return nil
		}))
		assert.Len(t, ids, 10)
	})

	t.Run("scan stops", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", NewTestPage("a", 1000, 4)))

		seen := 0
		require.NoError(t, store.Scan(ctx, "suite", 0, func(s pushshift.Submission) error {
			seen++
			if seen == 2 {
				return docstore.ErrStopScan
			}
			return nil
		}))
		assert.Equal(t, 2, seen)
	})

	t.Run("update during scan replaces in place", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", NewTestPage("a", 1000, 3)))

		err := store.Scan(ctx, "suite", 0, func(s pushshift.Submission) error {
			done := s.WithComments([]pushshift.Comment{NewTestComment("c_"+s.ID, "hi")})
			return store.UpsertSubmissions(ctx, "suite", []pushshift.Submission{done})
		})
		require.NoError(t, err)

		var ids []string
		require.NoError(t, store.Scan(ctx, "suite", 0, func(s pushshift.Submission) error {
			ids = append(ids, s.ID)
			require.True(t, s.Backfilled())
			require.Len(t, s.Comments, 1)
			assert.Equal(t, "c_"+s.ID, s.Comments[0].ID)
			assert.Equal(t, "hi", s.Comments[0].Raw["body"])
			return nil
		}))
		assert.Equal(t, []string{"a0", "a1", "a2"}, ids)
	})

	t.Run("empty comments survive a round trip", func(t *testing.T) {
		store := newStore(t)
		sub := NewTestSubmission("z", 5000, 2).WithComments(nil)
		require.NoError(t, store.UpsertSubmissions(ctx, "suite", []pushshift.Submission{sub}))

		require.NoError(t, store.Scan(ctx, "suite", 0, func(s pushshift.Submission) error {
			assert.True(t, s.Backfilled())
			assert.NotNil(t, s.Comments)
			assert.Empty(t, s.Comments)
			return nil
		}))
	})

	t.Run("crawl state", func(t *testing.T) {
		store := newStore(t)

		state, err := store.Load(ctx, "suite")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.NotStarted(), state)

		require.NoError(t, store.Save(ctx, "suite", checkpoint.InProgress(1451606400)))
		require.NoError(t, store.Save(ctx, "suite", checkpoint.InProgress(1451700000)))
		require.NoError(t, store.Save(ctx, "beta", checkpoint.Exhausted(1500000000)))

		state, err = store.Load(ctx, "suite")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.InProgress(1451700000), state)

		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "beta", entries[0].Subreddit)
		assert.Equal(t, checkpoint.Exhausted(1500000000), entries[0].State)
		assert.False(t, entries[0].UpdatedAt.IsZero())

		require.NoError(t, store.Delete(ctx, "suite"))
		state, err = store.Load(ctx, "suite")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.NotStarted(), state)

		assert.Error(t, store.Save(ctx, "bad", checkpoint.State{Status: "bogus"}))
	})
}
