package main

import (
	"context"

	"github.com/spf13/cobra"

	"redditcrawler/pkg/crawler"
	"redditcrawler/pkg/publish"
	"redditcrawler/pkg/retry"
	"redditcrawler/pkg/ui"
)

var historyCmd = &cobra.Command{
	Use:   "history [subreddit...]",
	Short: "Crawl the submission history of subreddits",
	Long: `Walk the submission search of each subreddit forward in time.

Each subreddit starts from its checkpoint, or from crawl.start_epoch when it
has none, and advances page by page until an empty page comes back. Pages
are upserted by id, so rerunning never duplicates submissions.

When publish.nats_url is set every persisted page is also published as a
JSON event.

Mongo collections filled by older plain inserts may hold duplicate ids. The
crawl then runs without the unique id index and logs a warning; remove the
duplicates once to restore it.`,
	Example: `  # Crawl the configured subreddits into mongo
  redditcrawler history

  # Crawl two subreddits into a local sqlite file
  redditcrawler history ethtrader ethfinance --storage sqlite --dsn ./reddit.db`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	subs, err := a.subreddits(args)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(a.log, store)

	states, err := a.checkpoints(store)
	if err != nil {
		return err
	}

	history := crawler.NewHistory(a.pushshift(), store, states, crawler.HistoryOptions{
		PageSize:   a.cfg.Crawl.PageSize,
		StartEpoch: a.cfg.Crawl.StartEpoch,
		Policy:     retry.FromConfig(a.cfg.Retry, a.log),
		Logger:     a.log,
		RunID:      a.runID,
	})

	progress := ui.NewCrawlProgress()
	history.AddObserver(crawler.PageObserverFunc(func(ctx context.Context, e crawler.PageEvent) error {
		progress.Page(e.Subreddit, e.Count, e.Cursor)
		return nil
	}))

	if a.cfg.Publish.NatsURL != "" {
		pub, err := publish.Connect(a.cfg.Publish.NatsURL, a.cfg.Publish.Subject, a.log)
		if err != nil {
			return err
		}
		defer pub.Close()
		history.AddObserver(pub)
	}

	ui.PrintInfo("Subreddits", joinSubs(subs))
	results, err := history.RunAll(ctx, subs)
	for _, r := range results {
		progress.Done(r.Subreddit, r.Records, r.Elapsed)
	}
	if err != nil {
		if interrupted(ctx) {
			return nil
		}
		return err
	}

	ui.PrintSuccess("History crawl complete")
	return nil
}
