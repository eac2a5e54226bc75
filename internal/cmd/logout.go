package cmd

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session everywhere",
	Long: `End the session: tell the server to terminate it and wipe all local
session state. Other open instances observe the wipe and log out too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		app.Handlers.Logout(cmd.Context())
		cmd.Println("Logged out.")
		return nil
	},
}
