package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/types"
)

func newTablesCmd(c *cli) *cobra.Command {
	var counts bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			var conn *sheetbase.Connection
			var tables []types.Table
			var err error
			if counts {
				if conn, err = c.connect(); err != nil {
					return err
				}
				tables = conn.Tables()
			} else if tables, err = c.tables(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			header := "TABLE\tKEY\tCOLUMNS\tREFERENCES"
			if counts {
				header += "\tROWS"
			}
			fmt.Fprintln(w, header)
			for _, t := range tables {
				key := "-"
				if pk, ok := t.PrimaryKey(); ok {
					key = pk.Name
				}
				var refs []string
				for _, rel := range t.Relations() {
					target := rel.TargetTable
					if rel.TargetColumn != "" {
						target += "." + rel.TargetColumn
					}
					refs = append(refs, rel.Column+"->"+target)
				}
				if len(refs) == 0 {
					refs = []string{"-"}
				}
				line := fmt.Sprintf("%s\t%s\t%s\t%s", t.Name, key, strings.Join(t.ColumnNames(), ","), strings.Join(refs, " "))
				if counts {
					n, err := conn.MustRepo(t.Name).Count(ctx)
					if err != nil {
						return err
					}
					line += fmt.Sprintf("\t%d", n)
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&counts, "count", false, "read the store and show row counts")
	return cmd
}

func newDumpCmd(c *cli) *cobra.Command {
	var (
		format  string
		include []string
	)
	cmd := &cobra.Command{
		Use:   "dump TABLE",
		Short: "Print every record of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			conn, err := c.connect()
			if err != nil {
				return err
			}
			repo, err := conn.Repo(args[0])
			if err != nil {
				return err
			}
			opts := sheetbase.ReadOptions{}
			if len(include) > 0 {
				opts.Include = make(map[string]bool, len(include))
				for _, name := range include {
					opts.Include[name] = true
				}
			}
			records, err := repo.ReadAll(ctx, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if records == nil {
					records = []types.Record{}
				}
				return enc.Encode(records)
			case "jsonl":
				enc := json.NewEncoder(out)
				for _, rec := range records {
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			case "table":
				table := repo.Table()
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, strings.Join(table.ColumnNames(), "\t"))
				for _, rec := range records {
					cells := make([]string, len(table.Columns))
					for i, col := range table.Columns {
						if v := rec[col.Name]; v != nil {
							cells[i] = fmt.Sprint(v)
						}
					}
					fmt.Fprintln(w, strings.Join(cells, "\t"))
				}
				return w.Flush()
			}
			return fmt.Errorf("unknown format %q (json, jsonl or table)", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or jsonl")
	cmd.Flags().StringSliceVar(&include, "include", nil, "related tables to attach (json formats)")
	return cmd
}
