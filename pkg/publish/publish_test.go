package publish

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redditcrawler/internal/testutil"
	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/crawler"
	"redditcrawler/pkg/docstore/memory"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
)

func startTestNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	require.NoError(t, err)
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return srv, nc
}

func TestPagePublisher(t *testing.T) {
	_, nc := startTestNATS(t)
	pub := NewPagePublisher(nc, "", logger.NewTestLogger())

	ch := make(chan crawler.PageEvent, 1)
	sub, err := Subscribe(nc, DefaultSubject+".ethtrader", func(ctx context.Context, e crawler.PageEvent) {
		ch <- e
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, pub.PagePersisted(context.Background(), crawler.PageEvent{
		RunID:     "r1",
		Subreddit: "ethtrader",
		Page:      3,
		Count:     2,
		IDs:       []string{"a", "b"},
	}))
	require.NoError(t, nc.Flush())

	select {
	case e := <-ch:
		assert.Equal(t, "r1", e.RunID)
		assert.Equal(t, 3, e.Page)
		assert.Equal(t, []string{"a", "b"}, e.IDs)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for page event")
	}
}

func TestPublishMarshalError(t *testing.T) {
	_, nc := startTestNATS(t)
	assert.Error(t, Publish(context.Background(), nc, "test.err", make(chan int)))
}

func TestConnect(t *testing.T) {
	srv, _ := startTestNATS(t)
	pub, err := Connect(srv.ClientURL(), "custom", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom.btc", pub.SubjectFor("btc"))
	require.NoError(t, pub.Close())
	assert.True(t, pub.nc.IsClosed())

	_, err = Connect("nats://127.0.0.1:1", "", nil)
	assert.Error(t, err)
}

type staticPages struct{ page []pushshift.Submission }

func (s *staticPages) FetchPage(ctx context.Context, subreddit string, after int64, limit int) ([]pushshift.Submission, error) {
	var out []pushshift.Submission
	for _, sub := range s.page {
		if sub.CreatedUTC > after {
			out = append(out, sub)
		}
	}
	return out, nil
}

func TestHistoryPublishesEveryPage(t *testing.T) {
	_, nc := startTestNATS(t)
	events := make(chan crawler.PageEvent, 10)
	sub, err := Subscribe(nc, DefaultSubject+".>", func(ctx context.Context, e crawler.PageEvent) {
		events <- e
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	store := memory.New()
	h := crawler.NewHistory(&staticPages{page: testutil.NewTestPage("s", checkpoint.DefaultEpoch, 4)}, store, store,
		crawler.HistoryOptions{Logger: logger.NewNopLogger(), RunID: "run"})
	h.AddObserver(NewPagePublisher(nc, "", nil))

	_, err = h.Run(context.Background(), "ethtrader")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	select {
	case e := <-events:
		assert.Equal(t, "run", e.RunID)
		assert.Equal(t, 4, e.Count)
		assert.Equal(t, int64(checkpoint.DefaultEpoch+4), e.Cursor)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for page event")
	}
}
