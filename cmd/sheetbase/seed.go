package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetbase/sheetbase/internal/seed"
)

func newSeedCmd(c *cli) *cobra.Command {
	var (
		count    int
		rows     []string
		replace  bool
		seedVal  int64
		nullRate float64
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "seed [TABLE...]",
		Short: "Fill tables with fake rows that satisfy their foreign keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			perTable, err := parseRowCounts(rows)
			if err != nil {
				return err
			}
			conn, err := c.connect()
			if err != nil {
				return err
			}

			var progress io.Writer
			if !quiet {
				progress = cmd.ErrOrStderr()
			}
			res, err := seed.New(conn).Run(ctx, seed.Options{
				Rows:     perTable,
				Default:  count,
				Tables:   args,
				Replace:  replace,
				Seed:     seedVal,
				NullRate: nullRate,
				Progress: progress,
			})
			if err != nil {
				return err
			}
			for _, name := range res.Order {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, len(res.Records[name]))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "rows per table")
	cmd.Flags().StringSliceVar(&rows, "rows", nil, "per-table counts, e.g. Orders=5,Items=50")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace table contents instead of appending")
	cmd.Flags().Int64Var(&seedVal, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().Float64Var(&nullRate, "null-rate", 0.1, "share of optional cells left empty")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide progress bars")
	return cmd
}

func parseRowCounts(specs []string) (map[string]int, error) {
	out := make(map[string]int, len(specs))
	for _, spec := range specs {
		name, n, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --rows entry %q (want TABLE=N)", spec)
		}
		v, err := strconv.Atoi(n)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid row count in %q", spec)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
