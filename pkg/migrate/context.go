package migrate

import (
	"context"
	"fmt"

	"github.com/sheetbase/sheetbase/internal/a1"
	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Context is handed to migration procedures. Each operation looks the tab
// up in live metadata and issues one structural change while holding the
// connection's write token. Column indexes are zero-based.
type Context struct {
	conn *sheetbase.Connection
}

// Connection returns the connection the migration runs on, for data
// changes through repositories.
func (m *Context) Connection() *sheetbase.Connection { return m.conn }

// CreateTable adds a tab and writes columns as its header row.
func (m *Context) CreateTable(ctx context.Context, name string, columns ...string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return m.conn.Exclusive(ctx, func(ctx context.Context) error {
		tabs, err := m.conn.Metadata(ctx)
		if err != nil {
			return err
		}
		if findTab(tabs, name) != nil {
			return errors.NewSchemaError(errors.CodeDuplicateTable, fmt.Sprintf("tab %q already exists", name))
		}
		if _, err := m.conn.Do(ctx, &transport.Call{
			Op:       transport.OpStructure,
			Requests: []transport.StructuralRequest{{AddTab: &transport.AddTab{Title: name}}},
		}); err != nil {
			return err
		}
		if len(columns) == 0 {
			return nil
		}
		header := make([]any, len(columns))
		for i, c := range columns {
			header[i] = c
		}
		_, err = m.conn.Do(ctx, &transport.Call{Op: transport.OpWrite, Range: a1.Cell(name, 0, 0), Values: [][]any{header}})
		return err
	})
}

// AddColumn inserts a column named column. Without an index it goes after
// the last header cell.
func (m *Context) AddColumn(ctx context.Context, table, column string, index ...int) error {
	return m.conn.Exclusive(ctx, func(ctx context.Context) error {
		tab, err := m.resolve(ctx, table)
		if err != nil {
			return err
		}

		at := 0
		if len(index) > 0 {
			at = index[0]
		} else {
			res, err := m.conn.Do(ctx, &transport.Call{Op: transport.OpRead, Range: a1.Row(table, tab.Columns, 0)})
			if err != nil {
				return err
			}
			if len(res.Values) > 0 {
				at = len(res.Values[0])
			}
		}
		if at < 0 {
			return errors.NewValidationError(errors.CodeInvalidRecord, "column index must not be negative",
				errors.Issue{Field: "index", Message: "negative", Value: at})
		}

		_, err = m.conn.Do(ctx, &transport.Call{
			Op: transport.OpStructure,
			Requests: []transport.StructuralRequest{
				{InsertColumns: &transport.ColumnSpan{TabID: tab.TabID, Index: at, Count: 1}},
				{UpdateCell: &transport.UpdateCell{TabID: tab.TabID, Row: 0, Column: at, Value: column}},
			},
		})
		return err
	})
}

// RemoveColumn deletes the column at index, data included.
func (m *Context) RemoveColumn(ctx context.Context, table string, index int) error {
	return m.conn.Exclusive(ctx, func(ctx context.Context) error {
		tab, err := m.resolve(ctx, table)
		if err != nil {
			return err
		}
		_, err = m.conn.Do(ctx, &transport.Call{
			Op:       transport.OpStructure,
			Requests: []transport.StructuralRequest{{DeleteColumns: &transport.ColumnSpan{TabID: tab.TabID, Index: index, Count: 1}}},
		})
		return err
	})
}

// RenameColumn rewrites the header cell at index.
func (m *Context) RenameColumn(ctx context.Context, table string, index int, newName string) error {
	return m.conn.Exclusive(ctx, func(ctx context.Context) error {
		tab, err := m.resolve(ctx, table)
		if err != nil {
			return err
		}
		_, err = m.conn.Do(ctx, &transport.Call{
			Op:       transport.OpStructure,
			Requests: []transport.StructuralRequest{{UpdateCell: &transport.UpdateCell{TabID: tab.TabID, Row: 0, Column: index, Value: newName}}},
		})
		return err
	})
}

// RenameTable renames a tab.
func (m *Context) RenameTable(ctx context.Context, oldName, newName string) error {
	if err := checkName(oldName); err != nil {
		return err
	}
	if err := checkName(newName); err != nil {
		return err
	}
	return m.conn.Exclusive(ctx, func(ctx context.Context) error {
		tab, err := m.resolve(ctx, oldName)
		if err != nil {
			return err
		}
		_, err = m.conn.Do(ctx, &transport.Call{
			Op:       transport.OpStructure,
			Requests: []transport.StructuralRequest{{RenameTab: &transport.RenameTab{TabID: tab.TabID, Title: newName}}},
		})
		return err
	})
}

func (m *Context) resolve(ctx context.Context, name string) (transport.TabProperties, error) {
	tabs, err := m.conn.Metadata(ctx)
	if err != nil {
		return transport.TabProperties{}, err
	}
	tab := findTab(tabs, name)
	if tab == nil {
		return transport.TabProperties{}, tabNotFound(name)
	}
	return *tab, nil
}

func checkName(name string) error {
	if name == "" {
		return errors.NewSchemaError(errors.CodeInvalidTable, "table name is required")
	}
	if name == types.LedgerTable {
		return errors.NewSchemaError(errors.CodeReservedName,
			fmt.Sprintf("table name %q is reserved for the migration ledger", name))
	}
	return nil
}
