package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/ui"
)

var stateOverwrite bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and edit crawl checkpoints",
	Long: `Inspect and edit the per-subreddit crawl checkpoints.

Checkpoints live in the document store (checkpoint.driver: store) or as
one JSON file per subreddit (checkpoint.driver: file).`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List every checkpoint",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <subreddit>",
	Short: "Drop the checkpoint of a subreddit",
	Long: `Drop the checkpoint of a subreddit so the next history run starts
again from crawl.start_epoch. Stored submissions are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateReset,
}

var stateImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Seed checkpoints from a site config file",
	Long: `Seed checkpoints from a site config file of the form

  {"subreddits": [{"name": "ethtrader", "currentAfterDate": 1514764800}]}

A subreddit without currentAfterDate is seeded as not started. Existing
checkpoints are kept unless --overwrite is given. The file is not modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runStateImport,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
	stateCmd.AddCommand(stateImportCmd)
	stateImportCmd.Flags().BoolVar(&stateOverwrite, "overwrite", false, "replace existing checkpoints")
}

// withStates opens the checkpoint store and hands it to fn
func withStates(fn func(ctx context.Context, a *app, states checkpoint.Store) error) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if a.cfg.Checkpoint.Driver == "file" {
		states, err := checkpoint.NewFileStore(a.cfg.Checkpoint.Directory, a.log)
		if err != nil {
			return err
		}
		return fn(ctx, a, states)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(a.log, store)
	return fn(ctx, a, store)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	return withStates(func(ctx context.Context, a *app, states checkpoint.Store) error {
		entries, err := states.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ui.PrintWarning("No checkpoints stored")
			return nil
		}

		counter, _ := states.(docstore.Store)
		ui.PrintHighlight("Checkpoints")
		for _, e := range entries {
			line := fmt.Sprintf("%-12s cursor %s", e.State.Status, ui.CursorTime(e.State.Cursor))
			if counter != nil {
				if n, err := counter.Count(ctx, e.Subreddit); err == nil {
					line += fmt.Sprintf(" • %s submissions", humanize.Comma(n))
				}
			}
			if !e.UpdatedAt.IsZero() {
				line += " • updated " + humanize.Time(e.UpdatedAt)
			}
			ui.PrintInfo("r/"+e.Subreddit, line)
		}
		return nil
	})
}

func runStateReset(cmd *cobra.Command, args []string) error {
	sub := args[0]
	return withStates(func(ctx context.Context, a *app, states checkpoint.Store) error {
		if err := states.Delete(ctx, sub); err != nil {
			return err
		}
		a.log.WithField("subreddit", sub).Info("checkpoint reset")
		ui.PrintSuccess("Checkpoint reset: r/" + sub)
		return nil
	})
}

func runStateImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	return withStates(func(ctx context.Context, a *app, states checkpoint.Store) error {
		subs, err := checkpoint.ImportSiteFile(ctx, path, states, stateOverwrite)
		if err != nil {
			return err
		}
		a.log.InfoWithFields("imported site file", map[string]interface{}{
			"path":       path,
			"subreddits": subs,
		})
		ui.PrintSuccess(fmt.Sprintf("Imported %d subreddits from %s", len(subs), path))
		if len(subs) > 0 {
			ui.PrintInfo("Subreddits", joinSubs(subs))
		}
		return nil
	})
}
