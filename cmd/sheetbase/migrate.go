package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetbase/sheetbase/pkg/migrate"
	"github.com/sheetbase/sheetbase/pkg/types"
)

func newMigrateCmd(c *cli) *cobra.Command {
	var file string
	load := func() ([]migrate.Migration, error) {
		if file == "" {
			file = c.cfg.Client.Migrations
		}
		if file == "" {
			return nil, fmt.Errorf("a migration file is required (--file or client.migrations)")
		}
		return migrate.LoadFile(file)
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations from a migration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			migrations, err := load()
			if err != nil {
				return err
			}
			conn, err := c.connect()
			if err != nil {
				return err
			}
			report, err := migrate.NewRunner(conn).Run(ctx, migrations)
			if report != nil {
				for _, e := range report.Applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %s %s\n", types.FormatVersion(e.Version), e.Name)
				}
				if err == nil && len(report.Applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
				}
			}
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "migration file (YAML or JSON)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			conn, err := c.connect()
			if err != nil {
				return err
			}
			runner := migrate.NewRunner(conn)
			applied, err := runner.Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, e := range applied {
				fmt.Fprintf(w, "%s\t%s\t%s\n", types.FormatVersion(e.Version), e.Name, e.AppliedAt.Format(types.LedgerTimeLayout))
			}
			if file != "" || c.cfg.Client.Migrations != "" {
				migrations, err := load()
				if err != nil {
					return err
				}
				pending, err := runner.Pending(ctx, migrations)
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(w, "%s\t%s\tpending\n", types.FormatVersion(m.Version), m.Name)
				}
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(status)
	return cmd
}
