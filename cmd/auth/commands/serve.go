package commands

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/quill/internal/auth/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "Run the HTTP API",
		Long:  `Apply migrations, seed the optional admin account and serve the auth API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			logger := app.NewLogger(cfg)

			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to initialize application", "error", err)
				return err
			}

			return application.Run()
		},
	}
}
