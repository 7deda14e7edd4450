package main

import (
	"github.com/spf13/cobra"

	"redditcrawler/pkg/crawler"
	"redditcrawler/pkg/ui"
)

var backfillSkip int

var backfillCmd = &cobra.Command{
	Use:   "backfill [subreddit...]",
	Short: "Attach comments to stored submissions",
	Long: `Scan every stored submission of each subreddit and attach its comments.

Submissions with fewer than backfill.min_comments comments are marked done
without a fetch. Updates are written in batches of backfill.batch_size.
A submission that keeps failing is left unbackfilled and picked up by the
next run.`,
	Example: `  # Backfill the configured subreddits
  redditcrawler backfill

  # Resume a pass that stopped after 12000 records
  redditcrawler backfill ethtrader --skip 12000`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
	backfillCmd.Flags().IntVar(&backfillSkip, "skip", 0, "number of stored submissions to skip")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	a, err := loadApp(map[string]interface{}{"skip": backfillSkip})
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

	bc := a.cfg.Backfill
	backfill := crawler.NewBackfill(a.pushshift(), store, crawler.BackfillOptions{
		BatchSize:   bc.BatchSize,
		MinComments: bc.MinComments,
		Cooldown:    bc.Cooldown,
		MaxAttempts: bc.MaxAttempts,
		Logger:      a.log,
		RunID:       a.runID,
	})

	for _, sub := range subs {
		ui.PrintInfo("Backfilling", "r/"+sub)
		stats, err := backfill.Run(ctx, sub, bc.Skip)
		printBackfillStats(sub, stats)
		if err != nil {
			if interrupted(ctx) {
				return nil
			}
			return err
		}
	}

	ui.PrintSuccess("Backfill complete")
	return nil
}

func printBackfillStats(sub string, s crawler.BackfillStats) {
	ui.PrintStats("r/"+sub,
		[]string{"scanned", "skipped", "processed", "short-circuited", "fetched", "already done", "failed", "flushes"},
		map[string]int{
			"scanned":         s.Scanned,
			"skipped":         s.Skipped,
			"processed":       s.Processed,
			"short-circuited": s.ShortCircuited,
			"fetched":         s.Fetched,
			"already done":    s.AlreadyDone,
			"failed":          s.Failed,
			"flushes":         s.Flushes,
		})
}
