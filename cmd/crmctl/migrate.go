package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/migrate"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema changes to the CRM database",
		Long: `Open the CRM database, apply the baseline schema and every additive
schema step that is not already present. Running it again is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			db, err := database.Open(c.cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer db.Close()

			runner := migrate.NewRunner(migrate.Steps(), c.logger.With("component", "migrate"))
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}

			if c.asJSON {
				return c.printJSON(map[string]any{
					"database": c.cfg.DatabasePath(),
					"applied":  runner.Applied(),
					"state":    runner.State(),
				})
			}
			fmt.Fprintf(c.out, "%s: %d schema step(s) applied\n", c.cfg.DatabasePath(), runner.Applied())
			return nil
		},
	}
}
