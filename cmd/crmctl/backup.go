package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dukerupert/crm/internal/backup"
)

func newBackupCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore and delete database backups",
		Long: `Manage the local backup set.

Backups are whole-file copies of the CRM database kept in the backup
directory. Creating a backup evicts the oldest files beyond the retention
limit. Restoring takes a safety backup of the live database first.`,
	}

	cmd.AddCommand(
		newBackupCreateCmd(c),
		newBackupListCmd(c),
		newBackupStatusCmd(c),
		newBackupRestoreCmd(c),
		newBackupDeleteCmd(c),
	)
	return cmd
}

func newBackupCreateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Copy the live database into a new backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Backups.Create(cmd.Context(), backup.TriggerManual)
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(rec)
			}
			fmt.Fprintf(c.out, "%s %s (%s)\n", color.GreenString("created"), rec.Filename, backup.FormatSize(rec.SizeBytes))
			return nil
		},
	}
}

func newBackupListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Backups.List(cmd.Context())
			if err != nil {
				return err
			}
			if c.asJSON {
				if records == nil {
					records = []backup.Record{}
				}
				return c.printJSON(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(c.out, "no backups")
				return nil
			}

			loc := c.cfg.Location()
			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.Filename, backup.FormatSize(rec.SizeBytes),
					backup.FormatTimestamp(rec.CreatedAtMillis, loc))
			}
			return tw.Flush()
		},
	}
}

func newBackupStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show auto backup state and backup counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.Backups.Status(cmd.Context())
			if err != nil {
				return err
			}
			if c.asJSON {
				return c.printJSON(st)
			}

			loc := c.cfg.Location()
			auto := color.YellowString("disabled")
			if st.AutoBackupEnabled {
				auto = color.GreenString("enabled")
			}
			last, next := "never", "-"
			if st.LastBackupAtMillis != nil {
				last = backup.FormatTimestamp(*st.LastBackupAtMillis, loc)
			}
			if st.NextBackupAtMillis != nil {
				next = backup.FormatTimestamp(*st.NextBackupAtMillis, loc)
			}

			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Auto backup:\t%s\n", auto)
			fmt.Fprintf(tw, "Last backup:\t%s\n", last)
			fmt.Fprintf(tw, "Next backup:\t%s\n", next)
			fmt.Fprintf(tw, "Backups:\t%d\n", st.BackupCount)
			return tw.Flush()
		},
	}
}

func newBackupRestoreCmd(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore NAME",
		Short: "Replace the live database with a backup",
		Long: `Replace the live CRM database with the named backup.

The backup is integrity-checked first, then the current database is saved
as a new backup so the restore can itself be undone. Stop the server
before restoring.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("restore replaces the live database; pass --yes to confirm")
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := a.Backups.Store().PathFor(args[0])
			if err != nil {
				return err
			}
			safety, err := a.Backups.Restore(cmd.Context(), path)
			if err != nil {
				if safety.Filename != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "safety backup kept: %s\n", safety.Filename)
				}
				return err
			}
			if c.asJSON {
				return c.printJSON(map[string]any{"restored": args[0], "safety_backup": safety})
			}
			fmt.Fprintf(c.out, "%s %s\n", color.GreenString("restored"), args[0])
			fmt.Fprintf(c.out, "safety backup: %s\n", safety.Filename)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm replacing the live database")
	return cmd
}

func newBackupDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a backup file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			path, err := a.Backups.Store().PathFor(args[0])
			if err != nil {
				return err
			}
			if err := a.Backups.Delete(cmd.Context(), path); err != nil {
				return err
			}
			if !c.asJSON {
				fmt.Fprintf(c.out, "%s %s\n", color.RedString("deleted"), args[0])
				return nil
			}
			return c.printJSON(map[string]string{"deleted": args[0]})
		},
	}
}
