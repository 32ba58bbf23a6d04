package main

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"tweetpull/pkg/config"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
)

var (
	// Global flags
	configFile string
	logLevel   string
	verbose    bool
)

// rootCmd is the base command. Given a single handle it behaves like pull.
var rootCmd = &cobra.Command{
	Use:   "tweetpull [handle]",
	Short: "Extract an account's recent posts from X into a Parquet file",
	Long: `tweetpull walks an account's timeline from the newest post back to a cutoff
and writes every post into one Parquet file.

Features:
  - Human durations for the window ("30 days", "2 weeks", "6 months")
  - Rate limiting that honors the platform's reset times
  - Checkpoints after every batch, continue with --resume
  - Bounded memory while writing large histories
  - Credentials in the system keychain or an encrypted file`,
	Example: `  tweetpull nasa -o nasa.parquet -d "7 days"
  tweetpull pull nasa -o nasa.parquet --resume
  tweetpull export nasa.parquet nasa.md`,
	Version:       logger.Version,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runPull(cmd, args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./tweetpull.yaml or ~/.config/tweetpull/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show all log output instead of the progress bar")

	addPullFlags(rootCmd)

	rootCmd.SetVersionTemplate(`tweetpull {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// commandFlags collects flag values for config.Load
func commandFlags(progress bool) map[string]interface{} {
	flags := make(map[string]interface{})
	switch {
	case logLevel != "":
		flags["log-level"] = strings.ToLower(logLevel)
	case verbose:
		flags["log-level"] = "debug"
	case progress:
		// keep the progress line readable
		flags["log-level"] = "warn"
	}
	return flags
}

// setupLogging installs the process-wide logger for this invocation
func setupLogging(cfg *config.Config) (logger.Logger, error) {
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "set up logging")
	}
	return logger.GetLogger(), nil
}
