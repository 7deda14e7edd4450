package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(1451606400), cfg.Crawl.StartEpoch)
	assert.Equal(t, 1000, cfg.Crawl.PageSize)
	assert.Equal(t, "https://api.pushshift.io", cfg.Pushshift.BaseURL)
	assert.Equal(t, 100, cfg.Backfill.BatchSize)
	assert.Equal(t, 6, cfg.Backfill.MinComments)
	assert.Equal(t, 10*time.Second, cfg.Backfill.Cooldown)
	assert.Equal(t, 1000, cfg.Live.HotLimit)
	assert.Equal(t, 5, cfg.Live.SampleSize)
	assert.Equal(t, "mongo", cfg.Storage.Driver)
	assert.Equal(t, "reddit", cfg.Storage.Database)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDDITCRAWLER_SUBREDDITS", "golang, ethereum ,,bitcoin")
	t.Setenv("REDDITCRAWLER_START_EPOCH", "1500000000")
	t.Setenv("REDDITCRAWLER_REQUESTS_PER_MINUTE", "30")
	t.Setenv("REDDITCRAWLER_STORAGE_DRIVER", "sqlite")
	t.Setenv("REDDITCRAWLER_STORAGE_DSN", "/tmp/crawl.db")
	t.Setenv("REDDITCRAWLER_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, []string{"golang", "ethereum", "bitcoin"}, cfg.Crawl.Subreddits)
	assert.Equal(t, int64(1500000000), cfg.Crawl.StartEpoch)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/crawl.db", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("REDDITCRAWLER_START_EPOCH", "yesterday")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START_EPOCH")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redditcrawler.yaml")
	content := `
crawl:
  subreddits: [ArkEcosystem, ethtrader]
  page_size: 500
backfill:
  batch_size: 50
  cooldown: 3s
storage:
  driver: sqlite
  dsn: ./crawl.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, []string{"ArkEcosystem", "ethtrader"}, cfg.Crawl.Subreddits)
	assert.Equal(t, 500, cfg.Crawl.PageSize)
	assert.Equal(t, 50, cfg.Backfill.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.Backfill.Cooldown)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	// untouched sections keep their defaults
	assert.Equal(t, 6, cfg.Backfill.MinComments)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"page size too large", func(c *Config) { c.Crawl.PageSize = 5000 }, "page size"},
		{"bad subreddit", func(c *Config) { c.Crawl.Subreddits = []string{"a b"} }, "invalid subreddit"},
		{"zero rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }, "requests per minute"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "redis" }, "unknown storage driver"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Driver = "sqlite" }, "dsn is required"},
		{"zero batch", func(c *Config) { c.Backfill.BatchSize = 0 }, "batch size"},
		{"negative skip", func(c *Config) { c.Backfill.Skip = -1 }, "skip"},
		{"nats without subject", func(c *Config) {
			c.Publish.NatsURL = "nats://localhost:4222"
			c.Publish.Subject = ""
		}, "publish subject"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"bad checkpoint driver", func(c *Config) { c.Checkpoint.Driver = "s3" }, "checkpoint driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Crawl.PageSize = 0
	cfg.Backfill.BatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page size")
	assert.Contains(t, err.Error(), "batch size")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Crawl.Subreddits = []string{"golang"}
	cfg.Backfill.Cooldown = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, cfg, loaded)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\nbackfill:\n  skip: 5\n"), 0644))

	t.Setenv("REDDITCRAWLER_LOG_LEVEL", "error")

	cfg, err := Load(path, map[string]interface{}{
		"skip":       20,
		"subreddits": []string{"ethtrader"},
	})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Backfill.Skip)
	assert.Equal(t, []string{"ethtrader"}, cfg.Crawl.Subreddits)
}
