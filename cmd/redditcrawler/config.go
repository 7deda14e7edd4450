package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"redditcrawler/pkg/auth"
	"redditcrawler/pkg/config"
	"redditcrawler/pkg/ui"
)

// defaultConfigPath is where config init writes when --config is not given
const defaultConfigPath = "redditcrawler.yaml"

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage redditcrawler configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (REDDITCRAWLER_*)
  - Configuration file
  - .env file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'redditcrawler.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after every source has been applied.

Passwords inside connection strings are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Path accessibility
  - Whether the credentials the selected commands need can be found`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# redditcrawler configuration
#
# Every value can also be set with an environment variable prefixed with
# REDDITCRAWLER_, for example REDDITCRAWLER_SUBREDDITS=ethtrader,ethfinance

# Subreddits crawled when none are given on the command line
crawl:
  subreddits:
    - ethtrader
    - ethfinance
  # Where a subreddit without a checkpoint starts (unix seconds)
  start_epoch: 1451606400
  # Submissions per search page, at most 1000
  page_size: 1000

pushshift:
  base_url: "https://api.pushshift.io"
  timeout: 60s
  user_agent: "redditcrawler/1.0"

rate_limit:
  requests_per_minute: 60
  burst: 1

# Retries of transient failures (network, timeout, rate limit, 5xx)
retry:
  max_attempts: 5
  base_delay: 2s
  max_delay: 2m
  multiplier: 2.0

backfill:
  # Updates written per bulk upsert
  batch_size: 100
  # Submissions with fewer comments are marked done without a fetch
  min_comments: 6
  # Pause before a failed submission is tried again
  cooldown: 10s
  max_attempts: 3
  skip: 0

# Document store: mongo, sqlite, postgres or memory
storage:
  driver: mongo
  # Connection string; for mongo an empty dsn is built from the mongo credentials
  dsn: ""
  database: reddit

# Crawl cursors: "store" keeps them in the document store, "file" as JSON files
checkpoint:
  driver: store
  directory: ""

live:
  data_dir: "./data"
  hot_limit: 1000
  sample_size: 5
  reddit_base_url: "https://www.reddit.com"

# Publish one event per persisted history page when nats_url is set
publish:
  nats_url: ""
  subject: "reddit.history.page"

credentials:
  # JSON file keyed by site (reddit, mongo)
  file: ""
  # auto, file, keyring, encrypted or env
  backend: auto

logging:
  # debug, info, warn, error
  level: info
  # console or json
  format: console
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("%s already exists", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the subreddits and the storage section")
	fmt.Println("2. Store credentials with 'redditcrawler auth set mongo' and 'redditcrawler auth set reddit'")
	fmt.Println("3. Run 'redditcrawler config validate' to check the configuration")
	fmt.Println("4. Start crawling with 'redditcrawler history'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, commandFlags(nil))
	if err != nil {
		return err
	}

	display := *cfg
	display.Storage.DSN = maskDSN(display.Storage.DSN)
	display.Publish.NatsURL = maskDSN(display.Publish.NatsURL)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (REDDITCRAWLER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in ./, $XDG_CONFIG_HOME/redditcrawler, ~/.redditcrawler)")
	}
	fmt.Println("4. Default values")
	return nil
}

// maskDSN hides the password of a URL style connection string
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, commandFlags(nil))
	if err != nil {
		ui.PrintError("Configuration validation failed")
		return err
	}

	var warnings, problems []string

	if len(cfg.Crawl.Subreddits) == 0 {
		warnings = append(warnings, "crawl.subreddits is empty; subreddits must be given on the command line")
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if err := os.MkdirAll(cfg.Live.DataDir, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create live data directory: %v", err))
	}

	creds, err := auth.NewManager(cfg.Credentials)
	if err != nil {
		problems = append(problems, fmt.Sprintf("credentials: %v", err))
	} else {
		if cfg.Storage.Driver == "mongo" && cfg.Storage.DSN == "" {
			if _, _, err := creds.MongoURI(); err != nil {
				warnings = append(warnings, fmt.Sprintf("mongo credentials: %v", err))
			}
		}
		if _, err := creds.Reddit(); err != nil {
			warnings = append(warnings, fmt.Sprintf("reddit credentials (needed by live): %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration errors", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Subreddits: %v\n", cfg.Crawl.Subreddits)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Driver)
	fmt.Printf("  Checkpoints: %s\n", cfg.Checkpoint.Driver)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
