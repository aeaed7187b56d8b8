package migrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sheetbase/sheetbase/internal/a1"
	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Runner applies migrations through a connection.
type Runner struct {
	conn *sheetbase.Connection
	now  func() time.Time
}

// NewRunner creates a runner for conn.
func NewRunner(conn *sheetbase.Connection) *Runner {
	return &Runner{conn: conn, now: time.Now}
}

// Run applies every pending migration in ascending version order. On
// failure it returns the partial report together with a migration error
// carrying the failed version and name.
func (r *Runner) Run(ctx context.Context, migrations []Migration) (*Report, error) {
	pending, err := plan(migrations)
	if err != nil {
		return nil, err
	}
	if r.conn.ReadOnly() {
		return nil, errors.NewPermissionError(errors.CodeReadOnly, "migrations need a write credential")
	}

	var report *Report
	err = r.conn.ExclusiveRun(ctx, func(ctx context.Context) error {
		var err error
		report, err = r.apply(ctx, pending)
		return err
	})
	return report, err
}

// apply runs the pending migrations missing from the ledger. Callers hold
// the run lock, so the ledger read and the appends below form one unit.
func (r *Runner) apply(ctx context.Context, pending []Migration) (*Report, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	entries, err := r.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(entries))
	for _, e := range entries {
		applied[e.Version] = true
	}

	report := &Report{}
	mc := &Context{conn: r.conn}
	logger := r.conn.Logger()
	for _, m := range pending {
		if applied[m.Version] {
			report.Skipped = append(report.Skipped, m.Version)
			continue
		}

		if err := m.Up(ctx, mc); err != nil {
			return report, errors.NewMigrationError(m.Version, m.Name, err)
		}

		entry := types.LedgerEntry{Version: m.Version, Name: m.Name, AppliedAt: r.now().UTC()}
		if err := r.record(ctx, entry); err != nil {
			logger.Printf("[WARN] migrate: %s %s ran but was not recorded: %v", types.FormatVersion(m.Version), m.Name, err)
			return report, errors.NewMigrationError(m.Version, m.Name, err)
		}
		logger.Printf("migrate: applied %s %s", types.FormatVersion(m.Version), m.Name)
		report.Applied = append(report.Applied, entry)
	}
	return report, nil
}

// Status returns the ledger entries ordered by version. A store without a
// ledger has none.
func (r *Runner) Status(ctx context.Context) ([]types.LedgerEntry, error) {
	tabs, err := r.conn.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	if findTab(tabs, types.LedgerTable) == nil {
		return nil, nil
	}
	return r.readLedger(ctx)
}

// Pending returns the migrations not yet in the ledger, in the
// order a run would apply them.
func (r *Runner) Pending(ctx context.Context, migrations []Migration) ([]Migration, error) {
	sorted, err := plan(migrations)
	if err != nil {
		return nil, err
	}
	entries, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(entries))
	for _, e := range entries {
		applied[e.Version] = true
	}
	var out []Migration
	for _, m := range sorted {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	tabs, err := r.conn.Metadata(ctx)
	if err != nil {
		return err
	}
	if findTab(tabs, types.LedgerTable) != nil {
		return nil
	}

	err = r.conn.Exclusive(ctx, func(ctx context.Context) error {
		if _, err := r.conn.Do(ctx, &transport.Call{
			Op:       transport.OpStructure,
			Requests: []transport.StructuralRequest{{AddTab: &transport.AddTab{Title: types.LedgerTable}}},
		}); err != nil {
			return err
		}
		_, err := r.conn.Do(ctx, &transport.Call{
			Op:     transport.OpWrite,
			Range:  a1.Cell(types.LedgerTable, 0, 0),
			Values: [][]any{types.LedgerHeader()},
		})
		return err
	})
	if err != nil {
		return err
	}

	tabs, err = r.conn.Metadata(ctx)
	if err != nil {
		return err
	}
	if findTab(tabs, types.LedgerTable) == nil {
		return errors.NewStoreError(errors.CodeTabNotFound, "ledger tab missing after creation", nil)
	}
	return nil
}

func (r *Runner) readLedger(ctx context.Context) ([]types.LedgerEntry, error) {
	res, err := r.conn.Do(ctx, &transport.Call{
		Op:    transport.OpRead,
		Range: a1.Columns(types.LedgerTable, len(types.LedgerColumns)),
	})
	if err != nil {
		return nil, err
	}
	var entries []types.LedgerEntry
	for i, row := range res.Values {
		if i == 0 {
			continue
		}
		if e, ok := types.ParseLedgerRow(row); ok {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

func (r *Runner) record(ctx context.Context, entry types.LedgerEntry) error {
	return r.conn.Exclusive(ctx, func(ctx context.Context) error {
		_, err := r.conn.Do(ctx, &transport.Call{
			Op:     transport.OpAppend,
			Range:  a1.Columns(types.LedgerTable, len(types.LedgerColumns)),
			Values: [][]any{entry.Row()},
		})
		return err
	})
}

func findTab(tabs []transport.TabProperties, title string) *transport.TabProperties {
	for i := range tabs {
		if tabs[i].Title == title {
			return &tabs[i]
		}
	}
	return nil
}

func tabNotFound(name string) error {
	return errors.NewStoreError(errors.CodeTabNotFound, fmt.Sprintf("store has no tab named %q", name), nil)
}
