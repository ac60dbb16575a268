package commands

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/quill/internal/auth/app"
)

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	serve := newServeCommand()

	rootCmd := &cobra.Command{
		Use:          "quill-auth",
		Short:        "Quill authentication service",
		Version:      app.BuildVersion,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
	}

	rootCmd.AddCommand(
		serve,
		newMigrateCommand(),
		newPurgeCommand(),
	)

	return rootCmd
}
