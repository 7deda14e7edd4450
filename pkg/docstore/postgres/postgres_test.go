package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"redditcrawler/internal/testutil"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/logger"
)

// getTestDB returns a migrated, emptied store or skips the test
func getTestDB(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_URL not set, skipping PostgreSQL tests")
	}

	store, err := New(dbURL, logger.NewTestLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.RunMigrations(ctx))
	_, err = store.db.ExecContext(ctx, "TRUNCATE submissions, crawl_state")
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) docstore.Store {
		return getTestDB(t)
	})
}
