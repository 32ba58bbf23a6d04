package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tweetpull/pkg/auth"
	"tweetpull/pkg/config"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/ui"
)

var forceInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "tweetpull.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return errs.Newf(errs.KindConfig, "%s already exists, use --force to overwrite", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return errs.Wrap(errs.KindConfig, err, "")
		}
		ui.PrintSuccess(cmd.OutOrStdout(), "Wrote %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with cookies masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, commandFlags(false))
		if err != nil {
			return errs.Wrap(errs.KindConfig, err, "")
		}

		display := *cfg
		masked := auth.SanitizeAccount(&auth.Account{
			AuthToken: cfg.Twitter.AuthToken,
			CSRFToken: cfg.Twitter.CSRFToken,
		})
		if cfg.Twitter.AuthToken != "" {
			display.Twitter.AuthToken = masked.AuthToken
		}
		if cfg.Twitter.CSRFToken != "" {
			display.Twitter.CSRFToken = masked.CSRFToken
		}

		data, err := yaml.Marshal(&display)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, string(data))
		fmt.Fprintln(out, "\nSources, highest priority first: flags, TWEETPULL_* environment, .env, config file, defaults")
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(configFile, nil); err != nil {
			return errs.Wrap(errs.KindConfig, err, "")
		}
		ui.PrintSuccess(cmd.OutOrStdout(), "Configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}
