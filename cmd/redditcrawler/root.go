package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	errs "redditcrawler/pkg/errors"
	"redditcrawler/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	logFormat     string
	storageDriver string
	storageDSN    string
	quiet         bool
	noColor       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "redditcrawler",
	Short: "Archive subreddit submissions and comments",
	Long: `redditcrawler archives subreddit submissions into a document store.

Commands:
  history   walk the submission search forward in time from a checkpoint
  backfill  attach comments to every stored submission
  live      write the unseen part of the hot listing to flat files

Crawl cursors are checkpointed after every persisted page, so an
interrupted crawl resumes where it stopped.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuietMode(true)
		}
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.SetNoColor(true)
		}

		switch cmd.Name() {
		case "help", "version", "show", "validate":
		default:
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command. Any error exits with status 1 after
// printing its type.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(fmt.Sprintf("[%s] %s", errs.TypeOf(err), err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./redditcrawler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "document store (mongo, sqlite, postgres, memory)")
	rootCmd.PersistentFlags().StringVar(&storageDSN, "dsn", "", "document store connection string or sqlite path")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetVersionTemplate(`redditcrawler {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
