package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"redditcrawler/internal/testutil"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/logger"
)

// getTestStore connects to TEST_MONGO_URI with a throwaway database
func getTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping MongoDB tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name := fmt.Sprintf("redditcrawler_test_%d", time.Now().UnixNano())
	store, err := New(ctx, uri, name, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.db.Drop(context.Background())
		store.Close()
	})
	return store
}

func TestMongoStore(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) docstore.Store {
		return getTestStore(t)
	})
}

func TestUpsertIntoCollectionWithDuplicateIDs(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping MongoDB tests")
	}
	ctx := context.Background()
	log := logger.NewTestLogger()
	store, err := New(ctx, uri, fmt.Sprintf("redditcrawler_test_%d", time.Now().UnixNano()), log)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.db.Drop(context.Background())
		store.Close()
	})

	// rows left behind by plain inserts
	_, err = store.collection("legacy").InsertMany(ctx, []interface{}{
		bson.M{"id": "dup", "created_utc": int64(1)},
		bson.M{"id": "dup", "created_utc": int64(1)},
	})
	require.NoError(t, err)

	page := testutil.NewTestPage("a", 1000, 2)
	require.NoError(t, store.UpsertSubmissions(ctx, "legacy", page))

	n, err := store.Count(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)
}

func TestDecodeSubmissionDropsObjectID(t *testing.T) {
	sub, err := decodeSubmission(bson.M{
		"_id":               "ignored",
		"id":                "abc",
		"created_utc":       int64(1451606401),
		"num_comments":      int32(7),
		"comments":          bson.A{bson.M{"id": "c1", "body": "x"}},
		"comments_scrapped": int32(1),
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", sub.ID)
	assert.Equal(t, int64(1451606401), sub.CreatedUTC)
	assert.Equal(t, 7, sub.NumComments)
	assert.NotContains(t, sub.Raw, "_id")
	require.Len(t, sub.Comments, 1)
	assert.Equal(t, "c1", sub.Comments[0].ID)
	assert.True(t, sub.Backfilled())
}
