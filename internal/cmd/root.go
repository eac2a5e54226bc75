package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/xinggaoya/websess/internal/app"
	"github.com/xinggaoya/websess/internal/config"
	"github.com/xinggaoya/websess/internal/event"
	"github.com/xinggaoya/websess/internal/page"
	"github.com/xinggaoya/websess/internal/version"
)

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "Custom websess data directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("server", "", "Base URL of the web application")
	rootCmd.PersistentFlags().String("page", "", "Path to a saved app shell HTML with an embedded session payload")

	rootCmd.AddCommand(
		loginCmd,
		logoutCmd,
		runCmd,
		statusCmd,
		dirsCmd,
		logsCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "websess",
	Short: "Keep a web application session alive from your machine",
	Long: `Websess manages the bearer-token session of a web application on the client
side: it logs in, renews the token before it expires, detects server-side
invalidation, and follows logout signals from other open instances.`,
	Example: `
# Log in and remember the server
websess login me@example.com --server https://app.example.com

# Keep the session fresh until interrupted
websess run

# Bootstrap from a saved app shell page instead of logging in
websess run --page shell.html

# Show session state
websess status

# End the session everywhere
websess logout
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	)
	event.Flush()
	if err != nil {
		os.Exit(1)
	}
}

// setupApp handles the common setup logic: config, logging, telemetry, and
// the service graph.
func setupApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := setupConfig(cmd)
	if err != nil {
		return nil, err
	}

	server, _ := cmd.Flags().GetString("server")
	if server != "" {
		if err := cfg.SetBaseURL(server); err != nil {
			return nil, err
		}
	}

	app.SetupLogging(cfg)
	event.Init()

	payload, err := loadPagePayload(cmd)
	if err != nil {
		return nil, err
	}

	return app.New(cmd.Context(), cfg, payload)
}

func setupConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return config.Init(dataDir, debug)
}

// loadPagePayload opens the app shell HTML named by --page, if any.
func loadPagePayload(cmd *cobra.Command) (*page.Source, error) {
	path, _ := cmd.Flags().GetString("page")
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page %s: %w", path, err)
	}
	defer f.Close()
	return page.NewSource(f)
}
