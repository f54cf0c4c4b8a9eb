package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/trivia/internal/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply pending migrations, or roll back the last group with down",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			dir := "up"
			if len(args) == 1 {
				dir = args[0]
			}

			switch dir {
			case "up":
				return postgres.Migrate(cmd.Context(), c.Postgres.DSN())
			case "down":
				return postgres.Rollback(cmd.Context(), c.Postgres.DSN())
			default:
				return fmt.Errorf("unknown direction %q", dir)
			}
		},
	}
}
