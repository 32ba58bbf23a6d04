package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tweetpull/pkg/auth"
	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/ui"
)

var noGuide bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X session credentials",
	Long: `Manage stored X session cookies.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (` + auth.EnvAuthToken + `, ` + auth.EnvCSRFToken + `, read only)`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store session cookies securely",
	Long: `Store the auth_token and ct0 cookies of a logged-in browser session.

The values are read without echo and saved in the system keychain, falling
back to an encrypted file.`,
	Example: `  tweetpull auth login
  tweetpull auth login myhandle --no-guide`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions with masked cookies",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)
	loginCmd.Flags().BoolVar(&noGuide, "no-guide", false, "skip the cookie extraction guide")
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "initialize credential manager")
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(os.Stdin)

	if !noGuide {
		auth.WriteCookieGuide(out)
		fmt.Fprintln(out)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Fprint(out, "X username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username = input
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return errs.New(errs.KindConfig, "username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Fprintf(out, "Session for @%s already exists. Replace it? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Fprintln(out, "Enter cookie values (input is hidden):")
	authToken, err := promptSecret(out, "auth_token: ")
	if err != nil {
		return err
	}
	if problem := checkAuthToken(authToken); problem != "" {
		ui.PrintWarning(out, "auth_token %s, saving anyway", problem)
	}
	ct0, err := promptSecret(out, "ct0: ")
	if err != nil {
		return err
	}
	if problem := checkCSRFToken(ct0); problem != "" {
		ui.PrintWarning(out, "ct0 %s, saving anyway", problem)
	}

	fmt.Fprint(out, "User agent (optional, Enter to skip): ")
	userAgent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Username:  username,
		AuthToken: authToken,
		CSRFToken: ct0,
		UserAgent: strings.TrimSpace(userAgent),
	}
	if err := manager.Store(account); err != nil {
		return errs.Wrap(errs.KindConfig, err, "store credentials")
	}

	ui.PrintSuccess(out, "Saved session for @%s", username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "initialize credential manager")
	}
	if err := manager.Delete(args[0]); err != nil {
		return errs.Wrap(errs.KindConfig, err, "")
	}
	ui.PrintSuccess(cmd.OutOrStdout(), "Removed session for @%s", strings.TrimPrefix(args[0], "@"))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "initialize credential manager")
	}
	accounts, err := manager.List()
	if err != nil {
		return errs.Wrap(errs.KindConfig, err, "list credentials")
	}

	out := cmd.OutOrStdout()
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No stored sessions. Run 'tweetpull auth login' to add one.")
		return nil
	}
	for _, account := range accounts {
		masked := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "@%-20s auth_token=%s ct0=%s %s\n",
			masked.Username, masked.AuthToken, masked.CSRFToken,
			ui.Dim(masked.LastModified.Format("2006-01-02 15:04")))
	}
	return nil
}

func promptSecret(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	value := strings.TrimSpace(string(b))
	if value == "" {
		return "", errs.Newf(errs.KindConfig, "%s is required", strings.TrimSuffix(label, ": "))
	}
	return value, nil
}

// checkAuthToken returns a description of what looks wrong, or ""
func checkAuthToken(v string) string {
	if len(v) != 40 {
		return fmt.Sprintf("is %d characters, expected 40", len(v))
	}
	for _, r := range v {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "is not hexadecimal"
		}
	}
	return ""
}

func checkCSRFToken(v string) string {
	if len(v) < 32 {
		return fmt.Sprintf("is only %d characters", len(v))
	}
	return ""
}
