package cmd

import (
	"encoding/json"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/xinggaoya/websess/internal/session"
	"github.com/xinggaoya/websess/internal/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session state",
	Long: `Show the persisted session without touching it: no renewal is triggered
and no checker is started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		state := "no session"
		timeLeft := "-"

		raw, ok, err := app.Store.Get(cmd.Context(), storage.TokenKey)
		if err != nil {
			return err
		}
		if ok {
			var tok session.Token
			if err := json.Unmarshal([]byte(raw), &tok); err == nil {
				if left := tok.TimeLeft(time.Now()); left > 0 {
					state = "active"
					timeLeft = left.Truncate(time.Second).String()
				} else {
					state = "expired"
				}
			}
		}

		if term.IsTerminal(os.Stdout.Fd()) {
			// We're in a TTY: make it fancy.
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					return lipgloss.NewStyle().Padding(0, 2)
				}).
				Row("Server", app.Config.BaseURL).
				Row("Session", state).
				Row("Time left", timeLeft)
			lipgloss.Println(t)
			return nil
		}
		// Not a TTY.
		cmd.Println(app.Config.BaseURL)
		cmd.Println(state)
		cmd.Println(timeLeft)
		return nil
	},
}
