package sheetbase

import (
	"context"
	"fmt"

	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Sync replaces the contents of several tables at once: one batch clear and
// one batch write for every listed table, under a single hold of the write
// token. Records are checked against their schemas and primary keys must be
// unique within each table. Foreign keys are not checked.
func (c *Connection) Sync(ctx context.Context, data map[string][]types.Record) error {
	if c.ReadOnly() {
		return readOnlyError()
	}
	names := sortedKeys(data)
	if len(names) == 0 {
		return nil
	}

	clearRanges := make([]string, len(names))
	writes := make([]transport.ValueRange, len(names))
	for i, name := range names {
		repo, err := c.Repo(name)
		if err != nil {
			return err
		}
		rows, err := repo.prepareAll(data[name])
		if err != nil {
			return err
		}
		if err := uniqueKeys(repo.table, rows); err != nil {
			return err
		}

		values := make([][]any, 0, len(rows)+1)
		values = append(values, repo.table.Header())
		for _, rec := range rows {
			values = append(values, repo.table.FormatRow(rec))
		}
		clearRanges[i] = repo.table.ClearRange()
		writes[i] = transport.ValueRange{Range: repo.table.WriteRange(), Values: values}
	}

	return c.Exclusive(ctx, func(ctx context.Context) error {
		if _, err := c.Do(ctx, &transport.Call{Op: transport.OpBatchClear, Ranges: clearRanges}); err != nil {
			return err
		}
		_, err := c.Do(ctx, &transport.Call{Op: transport.OpBatchWrite, Data: writes})
		return err
	})
}

func uniqueKeys(table *types.Table, rows []types.Record) error {
	pk, ok := table.PrimaryKey()
	if !ok {
		return nil
	}
	seen := make(map[string]int, len(rows))
	for i, rec := range rows {
		key := types.KeyString(rec[pk.Name])
		if first, dup := seen[key]; dup {
			return errors.NewValidationError(errors.CodeDuplicateKey,
				fmt.Sprintf("%s: records %d and %d share %s %q", table.Name, first, i, pk.Name, key),
				errors.Issue{Field: fmt.Sprintf("[%d].%s", i, pk.Name), Message: "duplicate primary key", Value: rec[pk.Name]})
		}
		seen[key] = i
	}
	return nil
}

// EnsureTables creates a tab for every registered table the store lacks and
// writes the header row into every table that has none. It returns the
// names of the tabs it created.
func (c *Connection) EnsureTables(ctx context.Context) ([]string, error) {
	var created []string
	err := c.Exclusive(ctx, func(ctx context.Context) error {
		tabs, err := c.Metadata(ctx)
		if err != nil {
			return err
		}
		existing := make(map[string]bool, len(tabs))
		for _, t := range tabs {
			existing[t.Title] = true
		}

		var add []transport.StructuralRequest
		var present []string
		for _, name := range c.order {
			if existing[name] {
				present = append(present, name)
				continue
			}
			add = append(add, transport.StructuralRequest{AddTab: &transport.AddTab{Title: name}})
			created = append(created, name)
		}
		if len(add) > 0 {
			if _, err := c.Do(ctx, &transport.Call{Op: transport.OpStructure, Requests: add}); err != nil {
				return err
			}
		}

		needHeader := append([]string(nil), created...)
		if len(present) > 0 {
			ranges := make([]string, len(present))
			for i, name := range present {
				ranges[i] = c.tables[name].HeaderRange()
			}
			blocks, err := c.batchRead(ctx, ranges)
			if err != nil {
				return err
			}
			for i, name := range present {
				if len(blocks[i]) == 0 {
					needHeader = append(needHeader, name)
				}
			}
		}
		if len(needHeader) == 0 {
			return nil
		}

		data := make([]transport.ValueRange, len(needHeader))
		for i, name := range needHeader {
			t := c.tables[name]
			data[i] = transport.ValueRange{Range: t.WriteRange(), Values: [][]any{t.Header()}}
		}
		_, err = c.Do(ctx, &transport.Call{Op: transport.OpBatchWrite, Data: data})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(created) > 0 {
		c.logger.Printf("sheetbase: created tabs %v in store %s", created, c.store)
	}
	return created, nil
}

// CreateStore creates a new store with one tab and header row per table and
// returns its id. The tables are validated the same way Open validates them.
func CreateStore(ctx context.Context, tr transport.Transport, token, title string, tables []types.Table) (string, error) {
	if token == "" {
		return "", errors.NewPermissionError(errors.CodeReadOnly, "creating a store needs a write credential")
	}
	reg, err := newRegistry(tables)
	if err != nil {
		return "", err
	}

	res, err := tr.Do(ctx, &transport.Call{Op: transport.OpCreateStore, Title: title, Tabs: reg.order, Token: token})
	if err != nil {
		return "", errors.Classify(err)
	}
	if res == nil || res.StoreID == "" {
		return "", errors.NewStoreError(errors.CodeBadResponse, "create store returned no store id", nil)
	}

	data := make([]transport.ValueRange, len(reg.order))
	for i, name := range reg.order {
		t := reg.tables[name]
		data[i] = transport.ValueRange{Range: t.WriteRange(), Values: [][]any{t.Header()}}
	}
	if _, err := tr.Do(ctx, &transport.Call{Op: transport.OpBatchWrite, Store: res.StoreID, Data: data, Token: token}); err != nil {
		return res.StoreID, errors.Classify(err)
	}
	return res.StoreID, nil
}
