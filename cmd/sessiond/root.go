package main

import (
	"github.com/spf13/cobra"
)

// configFile is the --config flag shared by every subcommand.
var configFile string

// NewRootCmd creates the sessiond command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessiond",
		Short: "Stateless session authentication service",
		Long: `sessiond exchanges a username or email and password for a signed,
time-limited session token, and re-authenticates requests carrying it.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewUserAddCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
