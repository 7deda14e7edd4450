package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the crawler reads.
const EnvPrefix = "REDDITCRAWLER_"

// Config holds all configuration options for the crawler
type Config struct {
	Crawl       CrawlConfig       `yaml:"crawl" json:"crawl"`
	Pushshift   PushshiftConfig   `yaml:"pushshift" json:"pushshift"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" json:"rate_limit"`
	Retry       RetryConfig       `yaml:"retry" json:"retry"`
	Backfill    BackfillConfig    `yaml:"backfill" json:"backfill"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint" json:"checkpoint"`
	Live        LiveConfig        `yaml:"live" json:"live"`
	Publish     PublishConfig     `yaml:"publish" json:"publish"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// CrawlConfig lists the subreddits to walk and where a fresh walk starts
type CrawlConfig struct {
	Subreddits []string `yaml:"subreddits" json:"subreddits"`
	StartEpoch int64    `yaml:"start_epoch" json:"start_epoch"`
	PageSize   int      `yaml:"page_size" json:"page_size"`
}

// PushshiftConfig holds search API settings
type PushshiftConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int `yaml:"burst" json:"burst"`
}

// RetryConfig holds the unified retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier  float64       `yaml:"multiplier" json:"multiplier"`
}

// BackfillConfig holds comment backfill settings
type BackfillConfig struct {
	BatchSize   int           `yaml:"batch_size" json:"batch_size"`
	MinComments int           `yaml:"min_comments" json:"min_comments"`
	Cooldown    time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Skip        int           `yaml:"skip" json:"skip"`
}

// StorageConfig selects the document store backend
type StorageConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"dsn"`
	Database string `yaml:"database" json:"database"`
}

// CheckpointConfig selects where crawl cursors live. "store" keeps them
// alongside the documents, "file" keeps one JSON file per subreddit.
type CheckpointConfig struct {
	Driver    string `yaml:"driver" json:"driver"`
	Directory string `yaml:"directory" json:"directory"`
}

// LiveConfig holds live scraper settings
type LiveConfig struct {
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	HotLimit      int    `yaml:"hot_limit" json:"hot_limit"`
	SampleSize    int    `yaml:"sample_size" json:"sample_size"`
	RedditBaseURL string `yaml:"reddit_base_url" json:"reddit_base_url"`
}

// PublishConfig enables page events on NATS when NatsURL is set
type PublishConfig struct {
	NatsURL string `yaml:"nats_url" json:"nats_url"`
	Subject string `yaml:"subject" json:"subject"`
}

// CredentialsConfig points at the per-site credentials
type CredentialsConfig struct {
	File    string `yaml:"file" json:"file"`
	Backend string `yaml:"backend" json:"backend"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			StartEpoch: 1451606400,
			PageSize:   1000,
		},
		Pushshift: PushshiftConfig{
			BaseURL:   "https://api.pushshift.io",
			Timeout:   60 * time.Second,
			UserAgent: "redditcrawler/1.0",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             1,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			MaxDelay:    2 * time.Minute,
			Multiplier:  2.0,
		},
		Backfill: BackfillConfig{
			BatchSize:   100,
			MinComments: 6,
			Cooldown:    10 * time.Second,
			MaxAttempts: 3,
		},
		Storage: StorageConfig{
			Driver:   "mongo",
			Database: "reddit",
		},
		Checkpoint: CheckpointConfig{
			Driver: "store",
		},
		Live: LiveConfig{
			DataDir:       "./data",
			HotLimit:      1000,
			SampleSize:    5,
			RedditBaseURL: "https://www.reddit.com",
		},
		Publish: PublishConfig{
			Subject: "reddit.history.page",
		},
		Credentials: CredentialsConfig{
			Backend: "auto",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if subs := os.Getenv(EnvPrefix + "SUBREDDITS"); subs != "" {
		c.Crawl.Subreddits = splitList(subs)
	}
	if v := os.Getenv(EnvPrefix + "START_EPOCH"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTART_EPOCH: %w", EnvPrefix, err))
		} else {
			c.Crawl.StartEpoch = n
		}
	}
	if v := os.Getenv(EnvPrefix + "PUSHSHIFT_URL"); v != "" {
		c.Pushshift.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "USER_AGENT"); v != "" {
		c.Pushshift.UserAgent = v
	}
	if v := os.Getenv(EnvPrefix + "REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_MINUTE: %w", EnvPrefix, err))
		} else if n > 0 {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(EnvPrefix + "DATABASE"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv(EnvPrefix + "CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.Directory = v
	}
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		c.Live.DataDir = v
	}
	if v := os.Getenv(EnvPrefix + "NATS_URL"); v != "" {
		c.Publish.NatsURL = v
	}
	if v := os.Getenv(EnvPrefix + "CREDENTIALS_FILE"); v != "" {
		c.Credentials.File = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		xdg = filepath.Join(home, ".config")
	}

	locations := []string{
		"redditcrawler.yaml",
		"redditcrawler.yml",
		filepath.Join(xdg, "redditcrawler", "config.yaml"),
		filepath.Join(home, ".redditcrawler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Crawl.PageSize <= 0 || c.Crawl.PageSize > 1000 {
		errs = append(errs, errors.New("page size must be between 1 and 1000"))
	}
	if c.Crawl.StartEpoch < 0 {
		errs = append(errs, errors.New("start epoch cannot be negative"))
	}
	for _, sub := range c.Crawl.Subreddits {
		if strings.TrimSpace(sub) == "" || strings.ContainsAny(sub, " /") {
			errs = append(errs, fmt.Errorf("invalid subreddit name %q", sub))
		}
	}

	if c.Pushshift.BaseURL == "" {
		errs = append(errs, errors.New("pushshift base url is required"))
	}
	if c.Pushshift.Timeout <= 0 {
		errs = append(errs, errors.New("pushshift timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("retry delays must satisfy 0 <= base_delay <= max_delay"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Backfill.BatchSize <= 0 {
		errs = append(errs, errors.New("backfill batch size must be positive"))
	}
	if c.Backfill.MinComments < 0 {
		errs = append(errs, errors.New("backfill min comments cannot be negative"))
	}
	if c.Backfill.Cooldown < 0 {
		errs = append(errs, errors.New("backfill cooldown cannot be negative"))
	}
	if c.Backfill.MaxAttempts < 1 {
		errs = append(errs, errors.New("backfill max attempts must be at least 1"))
	}
	if c.Backfill.Skip < 0 {
		errs = append(errs, errors.New("backfill skip cannot be negative"))
	}

	switch c.Storage.Driver {
	case "mongo", "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if (c.Storage.Driver == "sqlite" || c.Storage.Driver == "postgres") && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage dsn is required for driver %s", c.Storage.Driver))
	}

	switch c.Checkpoint.Driver {
	case "store", "file":
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint driver %q", c.Checkpoint.Driver))
	}

	if c.Live.HotLimit <= 0 || c.Live.HotLimit > 1000 {
		errs = append(errs, errors.New("live hot limit must be between 1 and 1000"))
	}
	if c.Live.SampleSize <= 0 {
		errs = append(errs, errors.New("live sample size must be positive"))
	}

	if c.Publish.NatsURL != "" && c.Publish.Subject == "" {
		errs = append(errs, errors.New("publish subject is required when nats_url is set"))
	}

	switch c.Credentials.Backend {
	case "auto", "file", "keyring", "encrypted", "env":
	default:
		errs = append(errs, fmt.Errorf("unknown credentials backend %q", c.Credentials.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		errs = append(errs, errors.New("log format must be console or json"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat, ok := flags["log-format"].(string); ok && logFormat != "" {
		c.Logging.Format = logFormat
	}
	if driver, ok := flags["storage"].(string); ok && driver != "" {
		c.Storage.Driver = driver
	}
	if dsn, ok := flags["dsn"].(string); ok && dsn != "" {
		c.Storage.DSN = dsn
	}
	if skip, ok := flags["skip"].(int); ok && skip > 0 {
		c.Backfill.Skip = skip
	}
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Live.DataDir = dataDir
	}
	if subs, ok := flags["subreddits"].([]string); ok && len(subs) > 0 {
		c.Crawl.Subreddits = subs
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: flags > environment > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".redditcrawler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
