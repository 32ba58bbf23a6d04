package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tweetpull/pkg/config"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/export"
	"tweetpull/pkg/ui"
)

var includeRetweets bool

var exportCmd = &cobra.Command{
	Use:   "export <input.parquet> <output.md>",
	Short: "Render an extracted Parquet file as Markdown",
	Long: `Write one "## YYYY-MM-DD HH:MM:SS" section per post followed by its text,
in extraction order. Retweets (posts starting with "RT @") are skipped unless
--include-retweets is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&includeRetweets, "include-retweets", false, "keep retweets in the output")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, commandFlags(false))
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "")
	}
	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	stats, err := export.File(args[0], args[1], export.Options{
		IncludeRetweets: includeRetweets,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ui.PrintSuccess(out, "Exported %d posts to %s", stats.Written, args[1])
	if stats.Retweets > 0 {
		ui.PrintInfo(out, "Skipped retweets", fmt.Sprint(stats.Retweets))
	}
	return nil
}
