package cmd

import (
	"os"
	"path/filepath"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/xinggaoya/websess/internal/config"
	"github.com/xinggaoya/websess/internal/home"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Print directories used by websess",
	Long: `Print the directories where websess stores its configuration and data
files.`,
	Example: `
# Print all directories
websess dirs

# Print only the config directory
websess dirs config

# Print only the data directory
websess dirs data
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupConfig(cmd)
		if err != nil {
			return err
		}
		if term.IsTerminal(os.Stdout.Fd()) {
			// We're in a TTY: make it fancy.
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					return lipgloss.NewStyle().Padding(0, 2)
				}).
				Row("Config", home.Short(filepath.Dir(config.GlobalConfig()))).
				Row("Data", home.Short(cfg.DataDirectory))
			lipgloss.Println(t)
			return nil
		}
		// Not a TTY.
		cmd.Println(filepath.Dir(config.GlobalConfig()))
		cmd.Println(cfg.DataDirectory)
		return nil
	},
}

var configDirCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration directory used by websess",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(filepath.Dir(config.GlobalConfig()))
	},
}

var dataDirCmd = &cobra.Command{
	Use:   "data",
	Short: "Print the data directory used by websess",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setupConfig(cmd)
		if err != nil {
			return err
		}
		cmd.Println(cfg.DataDirectory)
		return nil
	},
}

func init() {
	dirsCmd.AddCommand(configDirCmd, dataDirCmd)
}
