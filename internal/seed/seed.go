// Package seed fills registered tables with fake rows. Values follow the
// column types and, for text columns, the column names; foreign keys are
// drawn from the keys of the referenced table so seeded data always passes
// referential checks.
package seed

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gosuri/uiprogress"
	"golang.org/x/sync/errgroup"

	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Options tunes a seed run.
type Options struct {
	// Rows is the row count per table. Tables not listed get Default rows;
	// a zero count skips the table.
	Rows    map[string]int
	Default int

	// Tables limits the run. Empty means every registered table.
	Tables []string

	// Replace rewrites the seeded tables in one batched sync instead of
	// appending to them.
	Replace bool

	// Seed makes generation deterministic. Zero picks a random seed.
	Seed int64

	// NullRate is the share of optional, non-key cells left empty.
	NullRate float64

	// Progress receives progress bars when set.
	Progress io.Writer
}

// Result lists what was written, parents before children.
type Result struct {
	Order   []string
	Records map[string][]types.Record
}

// Seeder generates and writes fake rows through a connection.
type Seeder struct {
	conn *sheetbase.Connection
}

// New creates a seeder.
func New(conn *sheetbase.Connection) *Seeder {
	return &Seeder{conn: conn}
}

// Run generates rows level by level in dependency order. Tables of one
// level are generated concurrently.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	tables, err := s.selectTables(opts)
	if err != nil {
		return nil, err
	}
	levels, err := dependencyLevels(tables)
	if err != nil {
		return nil, err
	}

	// key pools for referenced tables that are not being seeded
	pools := make(map[string]map[string][]any)
	if err := s.loadExternalKeys(ctx, tables, pools, opts.Replace); err != nil {
		return nil, err
	}

	var progress *uiprogress.Progress
	bars := make(map[string]*uiprogress.Bar)
	if opts.Progress != nil {
		progress = uiprogress.New()
		progress.SetOut(opts.Progress)
		for _, level := range levels {
			for _, t := range level {
				name := t.Name
				bar := progress.AddBar(max(opts.count(name), 1)).AppendCompleted().PrependElapsed()
				bar.PrependFunc(func(b *uiprogress.Bar) string { return fmt.Sprintf("%-16s", name) })
				bars[name] = bar
			}
		}
		progress.Start()
		defer progress.Stop()
	}

	primaryKeys := make(map[string]string)
	for _, t := range s.conn.Tables() {
		if pk, ok := t.PrimaryKey(); ok {
			primaryKeys[t.Name] = pk.Name
		}
	}

	res := &Result{Records: make(map[string][]types.Record)}
	start := time.Now()
	for li, level := range levels {
		generated := make([][]types.Record, len(level))
		g, gctx := errgroup.WithContext(ctx)
		for i, t := range level {
			i, t := i, t
			offset, err := s.numericKeyOffset(ctx, t, opts.Replace)
			if err != nil {
				return nil, err
			}
			gen := &generator{
				table:       t,
				faker:       newFaker(opts.Seed, li, i),
				pools:       pools,
				nullRate:    opts.NullRate,
				offset:      offset,
				bar:         bars[t.Name],
				primaryKeys: primaryKeys,
			}
			g.Go(func() error {
				rows, err := gen.rows(gctx, opts.count(t.Name))
				generated[i] = rows
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for i, t := range level {
			rows := generated[i]
			res.Order = append(res.Order, t.Name)
			res.Records[t.Name] = rows
			addKeys(pools, t, rows)
			if !opts.Replace {
				if err := s.conn.MustRepo(t.Name).Append(ctx, rows); err != nil {
					return nil, fmt.Errorf("seed %s: %w", t.Name, err)
				}
			}
		}
	}

	if opts.Replace {
		if err := s.conn.Sync(ctx, res.Records); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	total := 0
	for _, rows := range res.Records {
		total += len(rows)
	}
	log.Printf("seed: wrote %d rows to %d tables in %s", total, len(res.Order), time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (o Options) count(table string) int {
	if n, ok := o.Rows[table]; ok {
		return n
	}
	return o.Default
}

func (s *Seeder) selectTables(opts Options) ([]types.Table, error) {
	var out []types.Table
	if len(opts.Tables) == 0 {
		for _, t := range s.conn.Tables() {
			if opts.count(t.Name) > 0 {
				out = append(out, t)
			}
		}
		return out, nil
	}
	for _, name := range opts.Tables {
		if _, err := s.conn.Repo(name); err != nil {
			return nil, err
		}
		t, _ := s.conn.Table(name)
		if opts.count(name) > 0 {
			out = append(out, t)
		}
	}
	return out, nil
}

// loadExternalKeys reads key columns of referenced tables outside the run.
// With replace set, seeded tables are rewritten, so only outside tables
// count; without it, existing keys of seeded parents are valid too.
func (s *Seeder) loadExternalKeys(ctx context.Context, tables []types.Table, pools map[string]map[string][]any, replace bool) error {
	seeded := make(map[string]bool, len(tables))
	for _, t := range tables {
		seeded[t.Name] = true
	}
	needed := make(map[string]bool)
	for _, t := range tables {
		for _, rel := range t.Relations() {
			if !seeded[rel.TargetTable] || !replace {
				needed[rel.TargetTable] = true
			}
		}
	}

	names := make([]string, 0, len(needed))
	for name := range needed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		repo, err := s.conn.Repo(name)
		if err != nil {
			return err
		}
		records, err := repo.ReadAll(ctx, sheetbase.ReadOptions{})
		if err != nil {
			return err
		}
		addKeys(pools, repo.Table(), records)
	}
	return nil
}

// numericKeyOffset returns the largest existing numeric primary key when
// appending, so generated keys continue after it.
func (s *Seeder) numericKeyOffset(ctx context.Context, t types.Table, replace bool) (int, error) {
	pk, ok := t.PrimaryKey()
	if !ok || pk.ValueType() != types.TypeNumber || replace {
		return 0, nil
	}
	records, err := s.conn.MustRepo(t.Name).ReadAll(ctx, sheetbase.ReadOptions{})
	if err != nil {
		return 0, err
	}
	top := 0
	for _, rec := range records {
		if f, ok := rec[pk.Name].(float64); ok && int(f) > top {
			top = int(f)
		}
	}
	return top, nil
}

// addKeys adds every column of rows to the pools of t, so references to
// non-key target columns resolve too.
func addKeys(pools map[string]map[string][]any, t types.Table, rows []types.Record) {
	pool := pools[t.Name]
	if pool == nil {
		pool = make(map[string][]any)
		pools[t.Name] = pool
	}
	for _, rec := range rows {
		for _, c := range t.Columns {
			if v := rec[c.Name]; v != nil && v != "" {
				pool[c.Name] = append(pool[c.Name], v)
			}
		}
	}
}

// dependencyLevels groups tables so that every table comes after the
// tables it references. Self references do not count.
func dependencyLevels(tables []types.Table) ([][]types.Table, error) {
	byName := make(map[string]types.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	placed := make(map[string]bool, len(tables))
	var levels [][]types.Table
	for len(placed) < len(tables) {
		var level []types.Table
		for _, t := range tables {
			if placed[t.Name] {
				continue
			}
			ready := true
			for _, rel := range t.Relations() {
				if _, inRun := byName[rel.TargetTable]; inRun && rel.TargetTable != t.Name && !placed[rel.TargetTable] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, t)
			}
		}
		if len(level) == 0 {
			var stuck []string
			for _, t := range tables {
				if !placed[t.Name] {
					stuck = append(stuck, t.Name)
				}
			}
			return nil, fmt.Errorf("seed: foreign keys form a cycle between %s", strings.Join(stuck, ", "))
		}
		for _, t := range level {
			placed[t.Name] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func newFaker(seed int64, level, index int) *gofakeit.Faker {
	if seed == 0 {
		return gofakeit.New(0)
	}
	return gofakeit.New(seed + int64(level)*1000 + int64(index))
}
