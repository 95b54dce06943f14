package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAutoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "auto on|off",
		Short:     "Turn scheduled backups on or off",
		Long:      `Persist the auto backup flag. A running server picks the change up on its next start.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := args[0] == "on"

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Backups.SetAutoBackupEnabled(enabled); err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(map[string]bool{"enabled": enabled})
			}
			fmt.Fprintf(c.out, "auto backup %s\n", args[0])
			return nil
		},
	}
}

func newWhereCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "where",
		Short: "Print the database and backup directory locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, dir := c.cfg.DatabasePath(), c.cfg.BackupDir()
			if c.asJSON {
				return c.printJSON(map[string]string{"database": db, "backups": dir})
			}
			fmt.Fprintf(c.out, "database: %s\nbackups:  %s\n", db, dir)
			return nil
		},
	}
}
