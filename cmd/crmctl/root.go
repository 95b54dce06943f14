package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/crm/internal/app"
	"github.com/dukerupert/crm/internal/config"
	"github.com/dukerupert/crm/internal/logging"
)

// cli carries the state shared by every subcommand once the root
// command has loaded configuration.
type cli struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	dataDir string
	asJSON  bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   "crmctl",
		Short: "Maintain the CRM database and its backups",
		Long: `crmctl works directly on the CRM data directory.

Configuration is read the same way the server reads it: an optional YAML
file named by CRM_CONFIG, then CRM_* environment variables. Commands that
replace the database file should be run while the server is stopped.

Examples:
  # Apply pending schema changes
  crmctl migrate

  # Take a backup and list the set
  crmctl backup create
  crmctl backup list

  # Restore a backup (a safety backup is taken first)
  crmctl backup restore crm_backup_1703500200000_2023-12-25T10-30-00-000Z.db --yes`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.dataDir != "" {
				cfg.DataDir = c.dataDir
			}
			c.cfg = cfg
			c.out = cmd.OutOrStdout()
			c.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (overrides CRM_DATA_DIR)")
	cmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print JSON instead of text")

	cmd.AddCommand(
		newMigrateCmd(c),
		newBackupCmd(c),
		newAutoCmd(c),
		newWhereCmd(c),
	)
	return cmd
}

func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, c.cfg, c.logger)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
