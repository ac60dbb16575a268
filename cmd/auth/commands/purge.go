package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/quill/internal/auth/app"
)

func newPurgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Args:  cobra.NoArgs,
		Short: "Delete expired refresh credentials once",
		Long:  `Run a single housekeeping pass, for deployments that schedule it externally instead of in-process.`,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfg := app.LoadConfig()
			logger := app.NewLogger(cfg)

			db, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, db.Close()) }()

			n, err := app.Purge(cmd.Context(), db, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired credentials\n", n)
			return nil
		},
	}
}
