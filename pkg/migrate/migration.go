// Package migrate runs versioned structural migrations against a store and
// records each applied version in a ledger tab.
//
// A run ensures the ledger exists, reads the applied versions, then runs
// every pending migration in ascending version order. A migration is
// recorded only after its procedure returns without error; the first
// failure stops the run and leaves that version pending, so the next run
// retries it.
package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Migration is one versioned change.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, m *Context) error
}

// Report describes a run.
type Report struct {
	// Applied lists the migrations run and recorded by this run, in order.
	Applied []types.LedgerEntry
	// Skipped lists versions that were already in the ledger.
	Skipped []int
}

// plan validates migrations and returns them sorted by version.
func plan(migrations []Migration) ([]Migration, error) {
	seen := make(map[int]string, len(migrations))
	for _, m := range migrations {
		if name, dup := seen[m.Version]; dup {
			return nil, errors.NewSchemaError(errors.CodeDuplicateVersion,
				fmt.Sprintf("migrations %q and %q share version %d", name, m.Name, m.Version))
		}
		seen[m.Version] = m.Name
		if m.Up == nil {
			return nil, errors.NewSchemaError(errors.CodeInvalidOptions,
				fmt.Sprintf("migration %d (%s) has no procedure", m.Version, m.Name))
		}
	}

	sorted := append([]Migration(nil), migrations...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted, nil
}
