package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xinggaoya/websess/internal/actions"
)

func init() {
	loginCmd.Flags().String("password", "", "Password (falls back to $WEBSESS_PASSWORD, then a prompt)")
}

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Log in and start a session",
	Args:  cobra.ExactArgs(1),
	Example: `
# Log in against the configured server
websess login me@example.com

# First login, remembering the server
websess login me@example.com --server https://app.example.com
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		email := args[0]

		password, err := resolvePassword(cmd)
		if err != nil {
			return err
		}

		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		if err := app.Handlers.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("login failed: %s", lastFailureMessage(app, actions.ActionLogin))
		}

		tok, err := app.Manager.EnsureSession(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Printf("Logged in as %s. Session valid for %s.\n", email, tok.TimeLeft(time.Now()).Truncate(time.Second))
		return nil
	},
}

func resolvePassword(cmd *cobra.Command) (string, error) {
	if password, _ := cmd.Flags().GetString("password"); password != "" {
		return password, nil
	}
	if password := os.Getenv("WEBSESS_PASSWORD"); password != "" {
		return password, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password provided - use --password or $WEBSESS_PASSWORD")
	}
	cmd.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
