package commands

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/quill/internal/auth/app"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Args:    cobra.NoArgs,
		Aliases: []string{"m"},
		Short:   "Apply store migrations and exit",
		Long:    `Bring the configured store (tables or collections and their indexes) up to date.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			logger := app.NewLogger(cfg)

			db, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}
