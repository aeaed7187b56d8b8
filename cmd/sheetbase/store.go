package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetbase/sheetbase/pkg/sheetbase"
)

func newCreateStoreCmd(c *cli) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create-store",
		Short: "Create a store with a tab and header row per schema table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			tables, err := c.tables()
			if err != nil {
				return err
			}
			tr, err := c.transport()
			if err != nil {
				return err
			}
			id, err := sheetbase.CreateStore(ctx, tr, c.cfg.Client.Token, title, tables)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "sheetbase", "store title")
	return cmd
}

func newEnsureCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create missing tabs and header rows for the schema tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			conn, err := c.connect()
			if err != nil {
				return err
			}
			start := time.Now()
			created, err := conn.EnsureTables(ctx)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "all %d tables present (%s)\n", len(conn.Tables()), since(start))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", strings.Join(created, ", "), since(start))
			return nil
		},
	}
}
