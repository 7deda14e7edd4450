package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"redditcrawler/pkg/auth"
	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/config"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/docstore/memory"
	"redditcrawler/pkg/docstore/mongostore"
	"redditcrawler/pkg/docstore/postgres"
	"redditcrawler/pkg/docstore/sqlite"
	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
	"redditcrawler/pkg/ratelimit"
	"redditcrawler/pkg/ui"
)

// app carries what every command needs once the config is loaded
type app struct {
	cfg   *config.Config
	log   logger.Logger
	runID string
	creds *auth.Manager
}

// loadApp reads the configuration, with extra holding command specific
// flag values, and initializes the global logger.
func loadApp(extra map[string]interface{}) (*app, error) {
	cfg, err := config.Load(configFile, commandFlags(extra))
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	runID := uuid.NewString()
	log := logger.GetLogger().WithField("run_id", runID)
	log.InfoWithFields("redditcrawler starting", map[string]interface{}{
		"version": version,
		"storage": cfg.Storage.Driver,
	})
	return &app{cfg: cfg, log: log, runID: runID}, nil
}

// commandFlags merges the root persistent flags into extra
func commandFlags(extra map[string]interface{}) map[string]interface{} {
	flags := make(map[string]interface{}, len(extra)+4)
	for k, v := range extra {
		flags[k] = v
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	if logFormat != "" {
		flags["log-format"] = logFormat
	}
	if storageDriver != "" {
		flags["storage"] = storageDriver
	}
	if storageDSN != "" {
		flags["dsn"] = storageDSN
	}
	return flags
}

func (a *app) credentials() (*auth.Manager, error) {
	if a.creds != nil {
		return a.creds, nil
	}
	m, err := auth.NewManager(a.cfg.Credentials)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeAuth, "credential manager", err)
	}
	a.creds = m
	return m, nil
}

// openStore connects the configured document store and applies its schema
func (a *app) openStore(ctx context.Context) (docstore.Store, error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case "mongo":
		uri, database := sc.DSN, sc.Database
		if uri == "" {
			creds, err := a.credentials()
			if err != nil {
				return nil, err
			}
			var db string
			uri, db, err = creds.MongoURI()
			if err != nil {
				return nil, errs.Wrap(errs.ErrorTypeAuth, "mongo credentials", err)
			}
			if db != "" {
				database = db
			}
		}
		store, err := mongostore.New(ctx, uri, database, a.log)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "sqlite":
		store, err := sqlite.New(sc.DSN, a.log)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case "postgres":
		store, err := postgres.New(sc.DSN, a.log)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case "memory":
		a.log.Warn("using the in-memory store; nothing will be kept after exit")
		return memory.New(), nil
	}
	return nil, errs.New(errs.ErrorTypeStorage, fmt.Sprintf("unknown storage driver %q", sc.Driver))
}

// checkpoints returns where crawl cursors are kept
func (a *app) checkpoints(store docstore.Store) (checkpoint.Store, error) {
	if a.cfg.Checkpoint.Driver == "file" {
		return checkpoint.NewFileStore(a.cfg.Checkpoint.Directory, a.log)
	}
	return store, nil
}

func (a *app) pushshift() *pushshift.Client {
	limiter := ratelimit.NewTokenBucket(a.cfg.RateLimit.RequestsPerMinute, a.cfg.RateLimit.Burst)
	return pushshift.NewClient(a.cfg.Pushshift, limiter, a.log)
}

// subreddits prefers the command arguments over the configured list
func (a *app) subreddits(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(a.cfg.Crawl.Subreddits) == 0 {
		return nil, errs.New(errs.ErrorTypeUnknown, "no subreddits given; pass them as arguments or set crawl.subreddits")
	}
	return a.cfg.Crawl.Subreddits, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// interrupted reports a cancelled run; the checkpoint already holds the
// last persisted page.
func interrupted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	ui.PrintWarning("\nInterrupted, progress up to the last persisted unit is kept")
	return true
}

func closeStore(log logger.Logger, store docstore.Store) {
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("failed to close store")
	}
}

func joinSubs(subs []string) string {
	return "r/" + strings.Join(subs, ", r/")
}
