package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/postgres"
	"github.com/victornm/trivia/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			if migrate {
				if err := postgres.Migrate(ctx, c.Postgres.DSN()); err != nil {
					return err
				}
			}

			s, err := server.Init(ctx, c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			if err := s.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "server: stopped with error", "error", err)
				return err
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}
