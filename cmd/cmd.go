package cmd

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "fvm",
	Short: "field visit manager",
	Long:  `this is a service to track field service visits: live location, auto check-in, route recording and booking status sync`,
}

func init() {
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
}
