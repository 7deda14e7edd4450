package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"redditcrawler/pkg/logger"
)

func TestStateConstructors(t *testing.T) {
	assert.False(t, NotStarted().Started())
	assert.True(t, InProgress(10).Started())
	assert.True(t, Exhausted(10).Started())

	assert.Equal(t, "not_started", NotStarted().String())
	assert.Equal(t, "in_progress(1451606400)", InProgress(DefaultEpoch).String())
	assert.Equal(t, "2016-01-01T00:00:00Z", InProgress(DefaultEpoch).CursorTime().Format("2006-01-02T15:04:05Z07:00"))
	assert.True(t, NotStarted().CursorTime().IsZero())
}

func TestStateValidate(t *testing.T) {
	assert.NoError(t, NotStarted().Validate())
	assert.NoError(t, Exhausted(5).Validate())
	assert.ErrorIs(t, State{Status: "paused"}.Validate(), ErrInvalidState)
	assert.ErrorIs(t, State{Status: StatusNotStarted, Cursor: 3}.Validate(), ErrInvalidState)
	assert.ErrorIs(t, InProgress(-1).Validate(), ErrInvalidState)
}

func TestStateJSON(t *testing.T) {
	tests := []struct {
		state State
		json  string
	}{
		{NotStarted(), `{"status":"not_started"}`},
		{InProgress(1514764800), `{"status":"in_progress","cursor":1514764800}`},
		{Exhausted(0), `{"status":"exhausted","cursor":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			data, err := json.Marshal(tt.state)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var back State
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, tt.state, back)
		})
	}

	var s State
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"status":"in_progress"}`), &s), ErrInvalidState)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"status":"bogus"}`), &s), ErrInvalidState)
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir, logger.NewNopLogger())
	require.NoError(t, err)

	t.Run("missing is not started", func(t *testing.T) {
		st, err := store.Load(ctx, "ethtrader")
		require.NoError(t, err)
		assert.Equal(t, NotStarted(), st)
	})

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "ethtrader", InProgress(1500000000)))
		st, err := store.Load(ctx, "ethtrader")
		require.NoError(t, err)
		assert.Equal(t, InProgress(1500000000), st)

		_, err = os.Stat(filepath.Join(dir, "ethtrader.checkpoint.json"))
		assert.NoError(t, err)
	})

	t.Run("save leaves no temp files", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "ethtrader", Exhausted(1500000100)))
		matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("records are independent", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "golang", InProgress(7)))

		st, err := store.Load(ctx, "ethtrader")
		require.NoError(t, err)
		assert.Equal(t, Exhausted(1500000100), st)
	})

	t.Run("list", func(t *testing.T) {
		entries, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "ethtrader", entries[0].Subreddit)
		assert.Equal(t, "golang", entries[1].Subreddit)
		assert.False(t, entries[1].UpdatedAt.IsZero())
	})

	t.Run("invalid state rejected", func(t *testing.T) {
		assert.ErrorIs(t, store.Save(ctx, "golang", State{Status: "weird"}), ErrInvalidState)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "golang"))
		require.NoError(t, store.Delete(ctx, "golang"))
		st, err := store.Load(ctx, "golang")
		require.NoError(t, err)
		assert.Equal(t, NotStarted(), st)
	})

	t.Run("corrupt file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.checkpoint.json"), []byte("{"), 0644))
		_, err := store.Load(ctx, "broken")
		assert.Error(t, err)
	})
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "checkpoints"), logger.NewNopLogger())
	require.NoError(t, err)

	for _, name := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		assert.ErrorIs(t, store.Save(ctx, name, InProgress(1)), ErrInvalidSubreddit, name)
		_, err := store.Load(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidSubreddit, name)
		assert.ErrorIs(t, store.Delete(ctx, name), ErrInvalidSubreddit, name)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "checkpoints")}, matches)
}

func TestFileStoreDefaultDirectory(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	store, err := NewFileStore("", nil)
	require.NoError(t, err)
	assert.DirExists(t, store.Dir())
}

func TestTrackerFirstRunStartsAtEpoch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := NewTracker(store, "ethtrader", 0, nil)

	st, err := tr.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, InProgress(DefaultEpoch), st)
	assert.False(t, tr.Resumed())

	stored, err := store.Load(ctx, "ethtrader")
	require.NoError(t, err)
	assert.Equal(t, InProgress(DefaultEpoch), stored)
}

func TestTrackerResumes(t *testing.T) {
	ctx := context.Background()

	for _, stored := range []State{InProgress(1600000000), Exhausted(1600000000)} {
		t.Run(string(stored.Status), func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.Save(ctx, "golang", stored))

			tr := NewTracker(store, "golang", 123, nil)
			st, err := tr.Begin(ctx)
			require.NoError(t, err)
			assert.True(t, tr.Resumed())
			assert.Equal(t, InProgress(1600000000), st)
		})
	}
}

func TestTrackerAdvanceWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := NewTracker(store, "golang", 100, nil)
	_, err := tr.Begin(ctx)
	require.NoError(t, err)

	for _, cursor := range []int64{150, 220, 221} {
		require.NoError(t, tr.Advance(ctx, cursor))
		stored, err := store.Load(ctx, "golang")
		require.NoError(t, err)
		assert.Equal(t, InProgress(cursor), stored)
		assert.Equal(t, cursor, tr.Cursor())
	}
	// Begin plus three pages
	assert.Equal(t, 4, store.Saves())

	assert.ErrorIs(t, tr.Advance(ctx, 221), ErrCursorRegression)
	assert.ErrorIs(t, tr.Advance(ctx, 10), ErrCursorRegression)
	assert.Equal(t, int64(221), tr.Cursor())
}

func TestTrackerMarkExhausted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := NewTracker(store, "golang", 100, nil)
	_, err := tr.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Advance(ctx, 500))

	require.NoError(t, tr.MarkExhausted(ctx))
	assert.Equal(t, Exhausted(500), tr.State())

	stored, err := store.Load(ctx, "golang")
	require.NoError(t, err)
	assert.Equal(t, Exhausted(500), stored)

	assert.ErrorIs(t, tr.Advance(ctx, 600), ErrInvalidState)
}

func TestImportSiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reddit.json")
	content := `{"subreddits": [
		{"name": "ArkEcosystem", "currentAfterDate": "1500000000"},
		{"name": "ethtrader", "currentAfterDate": 1510000000},
		{"name": "golang"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "ethtrader", InProgress(1600000000)))

	names, err := ImportSiteFile(ctx, path, store, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"ArkEcosystem", "ethtrader", "golang"}, names)

	ark, _ := store.Load(ctx, "ArkEcosystem")
	assert.Equal(t, InProgress(1500000000), ark)
	eth, _ := store.Load(ctx, "ethtrader")
	assert.Equal(t, InProgress(1600000000), eth, "existing checkpoint kept")
	gol, _ := store.Load(ctx, "golang")
	assert.Equal(t, NotStarted(), gol)

	_, err = ImportSiteFile(ctx, path, store, true)
	require.NoError(t, err)
	eth, _ = store.Load(ctx, "ethtrader")
	assert.Equal(t, InProgress(1510000000), eth, "overwrite replaces checkpoint")
}

func TestImportSiteFileErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := ImportSiteFile(ctx, filepath.Join(dir, "missing.json"), NewMemoryStore(), false)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"subreddits":[{"name":"x","currentAfterDate":"soon"}]}`), 0644))
	_, err = ImportSiteFile(ctx, bad, NewMemoryStore(), false)
	assert.Error(t, err)
}
