package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tweetpull/pkg/auth"
	"tweetpull/pkg/config"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/extractor"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/twitter"
	"tweetpull/pkg/ui"
)

var (
	outputPath string
	durationIn string
	resume     bool
	batchSize  int
)

var pullCmd = &cobra.Command{
	Use:   "pull <handle>",
	Short: "Extract posts newer than the cutoff into a Parquet file",
	Long: `Extract an account's posts, newest first, until the first post older than
now minus the duration. Posts are flushed in batches and a checkpoint is
written after each batch. After an interruption, rerun with --resume to
continue where the last checkpoint left off.

Exit codes:
  0   stopped at the cutoff or reached the start of the account's history
  2   invalid duration
  3   configuration error
  4   account not found
  5   account protected or suspended, or session rejected
  6   rate limit retries exhausted
  7   network retries exhausted
  8   unexpected post shape
  9   output file error`,
	Example: `  tweetpull pull nasa -o nasa.parquet
  tweetpull pull @nasa -o nasa.parquet -d "2 weeks" --batch-size 200
  tweetpull pull nasa -o nasa.parquet --resume`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
	addPullFlags(pullCmd)
}

func addPullFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output Parquet file (required)")
	cmd.Flags().StringVarP(&durationIn, "duration", "d", "", `how far back to go, e.g. "30 days" (default from config)`)
	cmd.Flags().BoolVar(&resume, "resume", false, "continue from the last checkpoint of this output")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "posts per flushed batch (default from config)")
}

func runPull(cmd *cobra.Command, handle string) error {
	if outputPath == "" {
		return errs.New(errs.KindConfig, "an output file is required (-o posts.parquet)")
	}

	showProgress := !verbose && term.IsTerminal(int(os.Stderr.Fd()))
	flags := commandFlags(showProgress)
	if batchSize > 0 {
		flags["batch-size"] = batchSize
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "")
	}

	log, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	if err := applyCredentials(cfg, log); err != nil {
		return err
	}

	client := twitter.NewClient(cfg.Twitter, log.WithField("component", "twitter"))
	ex := extractor.New(cfg, client,
		extractor.WithLogger(log),
		extractor.WithProgress(ui.NewProgressDisplay(os.Stderr, !showProgress)),
	)

	result, err := ex.Run(cmd.Context(), extractor.Request{
		Handle:   handle,
		Output:   outputPath,
		Duration: durationIn,
		Resume:   resume,
	})
	if err != nil {
		if result != nil && result.Records > 0 {
			ui.PrintWarning(os.Stderr, "Checkpoint kept at %d posts, rerun with --resume to continue", result.Records)
		}
		return err
	}

	ui.PrintSuccess(os.Stdout, "Wrote %d posts from @%s to %s", result.Records, screenName(result, handle), outputPath)
	return nil
}

// screenName prefers the resolved account's screen name over the handle as typed
func screenName(result *extractor.Result, handle string) string {
	if result.Account != nil && result.Account.ScreenName != "" {
		return result.Account.ScreenName
	}
	return strings.TrimPrefix(handle, "@")
}

// applyCredentials fills in session cookies from the credential store when
// neither config nor environment provided them
func applyCredentials(cfg *config.Config, log logger.Logger) error {
	if cfg.Twitter.AuthToken != "" && cfg.Twitter.CSRFToken != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "open credential store")
	}

	var account *auth.Account
	if cfg.Twitter.Account != "" {
		account, err = manager.Retrieve(cfg.Twitter.Account)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		return errs.Wrap(errs.KindConfig, err,
			fmt.Sprintf("no X session available, run 'tweetpull auth login' or set %s and %s", auth.EnvAuthToken, auth.EnvCSRFToken))
	}

	cfg.Twitter.AuthToken = account.AuthToken
	cfg.Twitter.CSRFToken = account.CSRFToken
	if account.UserAgent != "" && cfg.Twitter.UserAgent == "" {
		cfg.Twitter.UserAgent = account.UserAgent
	}
	log.WithField("session", account.Username).Debug("Using stored session")
	return nil
}
