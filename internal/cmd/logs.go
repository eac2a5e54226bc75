package cmd

import (
	"fmt"
	"os"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"

	"github.com/xinggaoya/websess/internal/app"
)

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "Follow the log output")
	logsCmd.Flags().IntP("tail", "t", 1000, "Number of lines to show from the end of the log")
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the keeper log",
	Example: `
# Show the log
websess logs

# Follow the log
websess logs -f
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupConfig(cmd)
		if err != nil {
			return err
		}

		logFile := app.LogFile(cfg)
		if _, err := os.Stat(logFile); os.IsNotExist(err) {
			cmd.Println("No logs yet.")
			return nil
		}

		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("tail")

		t, err := tail.TailFile(logFile, tail.Config{
			Follow: follow,
			ReOpen: follow,
			Logger: tail.DiscardingLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to tail log file: %w", err)
		}
		defer t.Cleanup()

		if !follow {
			// Buffer the tail so only the last N lines print.
			var buffered []string
			for line := range t.Lines {
				buffered = append(buffered, line.Text)
			}
			if len(buffered) > lines {
				buffered = buffered[len(buffered)-lines:]
			}
			for _, line := range buffered {
				cmd.Println(line)
			}
			return nil
		}

		for {
			select {
			case <-cmd.Context().Done():
				return t.Stop()
			case line, ok := <-t.Lines:
				if !ok {
					return nil
				}
				cmd.Println(line.Text)
			}
		}
	},
}
