package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xinggaoya/websess/internal/event"
	"github.com/xinggaoya/websess/internal/metrics"
	"github.com/xinggaoya/websess/internal/session"
	"github.com/xinggaoya/websess/internal/update"
	"github.com/xinggaoya/websess/internal/version"
)

var errSessionEnded = errors.New("session ended")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep the session fresh until interrupted",
	Long: `Run the session keeper in the foreground. The keeper renews the token
before it expires, probes the server for invalidation, and exits when the
session ends - locally, on the server, or from another instance.`,
	Example: `
# Keep the configured session alive
websess run

# Bootstrap from a saved app shell page
websess run --page shell.html
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		event.KeeperStarted()
		defer event.KeeperStopped()

		tok, err := app.Manager.EnsureSession(cmd.Context())
		if errors.Is(err, session.ErrNoSession) {
			return fmt.Errorf("no session - run 'websess login' first")
		}
		if err != nil {
			return err
		}
		cmd.Printf("Session active, %s left. Press ^c to stop.\n",
			tok.TimeLeft(time.Now()).Truncate(time.Second))

		go func() {
			info, err := update.Check(cmd.Context(), version.Version, update.Default)
			if err != nil {
				slog.Debug("Update check failed", "error", err)
				return
			}
			if !info.IsDevelopment() && info.Available() {
				slog.Info("New version available", "current", info.Current, "latest", info.Latest, "url", info.URL)
			}
		}()

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
		g.Go(func() error {
			// The manager navigates to the login view when the session
			// ends; watch for that transition.
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if app.Manager.State() == session.StateNoSession {
						return errSessionEnded
					}
				}
			}
		})

		err = g.Wait()
		slog.Info("Keeper finished", "metrics", metrics.Default.GetSnapshot())
		if errors.Is(err, errSessionEnded) {
			cmd.Println("Session ended, exiting.")
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
