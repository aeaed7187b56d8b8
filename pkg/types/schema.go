package types

import (
	"fmt"

	"github.com/sheetbase/sheetbase/internal/a1"
)

// ColumnType is the scalar type stored in a column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
)

// Valid reports whether t is one of the supported column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeBoolean:
		return true
	}
	return false
}

// Reference declares a foreign key. An empty Column means the target
// table's primary key.
type Reference struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
}

// Column defines a single column of a table.
type Column struct {
	// Name is the header cell and the record key
	Name string `json:"name" yaml:"name"`

	// Type is the scalar type; empty means text
	Type ColumnType `json:"type" yaml:"type"`

	// PrimaryKey marks the identity column (at most one per table)
	PrimaryKey bool `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`

	// Optional columns may hold nil
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`

	// Default is applied on create when the record omits the column
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// DefaultFunc generates a default when Default is nil
	DefaultFunc func() any `json:"-" yaml:"-"`

	// References declares a foreign key to another table
	References *Reference `json:"references,omitempty" yaml:"references,omitempty"`
}

// ValueType returns the column type, defaulting to text.
func (c Column) ValueType() ColumnType {
	if c.Type == "" {
		return TypeText
	}
	return c.Type
}

// HasDefault reports whether the column can fill an omitted value.
func (c Column) HasDefault() bool {
	return c.Default != nil || c.DefaultFunc != nil
}

// DefaultValue returns the default for an omitted value.
func (c Column) DefaultValue() any {
	if c.Default != nil {
		return c.Default
	}
	if c.DefaultFunc != nil {
		return c.DefaultFunc()
	}
	return nil
}

// Table is a registered logical table bound to one physical tab.
// Column order is the row layout for both parsing and serializing.
type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Relation is a foreign-key edge from Table.Column to TargetTable.TargetColumn.
type Relation struct {
	Table        string
	Column       string
	TargetTable  string
	TargetColumn string
}

func (r Relation) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", r.Table, r.Column, r.TargetTable, r.TargetColumn)
}

// ColumnNames returns the column names in layout order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name and returns its position.
func (t *Table) Column(name string) (Column, int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return c, i, true
		}
	}
	return Column{}, -1, false
}

// PrimaryKey returns the primary key column when exactly one is declared.
func (t *Table) PrimaryKey() (Column, bool) {
	var pk Column
	n := 0
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = c
			n++
		}
	}
	return pk, n == 1
}

// Relations returns the foreign keys declared on this table. Target columns
// left empty in the declaration are resolved to the target's primary key by
// the connection.
func (t *Table) Relations() []Relation {
	var rels []Relation
	for _, c := range t.Columns {
		if c.References == nil {
			continue
		}
		rels = append(rels, Relation{
			Table:        t.Name,
			Column:       c.Name,
			TargetTable:  c.References.Table,
			TargetColumn: c.References.Column,
		})
	}
	return rels
}

// ReadRange covers the header and every data row.
func (t *Table) ReadRange() string {
	return a1.Columns(t.Name, len(t.Columns))
}

// WriteRange is the top-left anchor for full rewrites.
func (t *Table) WriteRange() string {
	return a1.Cell(t.Name, 0, 0)
}

// ClearRange covers every cell of the table's columns.
func (t *Table) ClearRange() string {
	return a1.WholeColumns(t.Name, len(t.Columns))
}

// HeaderRange covers only the header row.
func (t *Table) HeaderRange() string {
	return a1.Row(t.Name, len(t.Columns), 0)
}

// AppendRange is where new rows are appended.
func (t *Table) AppendRange() string {
	return t.ReadRange()
}

// Validate checks the table definition on its own: a name, at least one
// column, unique non-empty column names, known types and at most one
// primary key.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	pks := 0
	for i, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %q: column %d has no name", t.Name, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %q: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		if !c.ValueType().Valid() {
			return fmt.Errorf("table %q: column %q has unknown type %q", t.Name, c.Name, c.Type)
		}
		if c.PrimaryKey {
			pks++
		}
		if c.References != nil && c.References.Table == "" {
			return fmt.Errorf("table %q: column %q references an empty table name", t.Name, c.Name)
		}
	}
	if pks > 1 {
		return fmt.Errorf("table %q declares %d primary keys, at most one is allowed", t.Name, pks)
	}
	return nil
}

// Header returns the header row.
func (t *Table) Header() []any {
	row := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = c.Name
	}
	return row
}

// ParseRow converts one physical row into a record by column position.
func (t *Table) ParseRow(row []any) Record {
	rec := make(Record, len(t.Columns))
	for i, c := range t.Columns {
		var cell any
		if i < len(row) {
			cell = row[i]
		}
		rec[c.Name] = ParseCell(c.ValueType(), cell)
	}
	return rec
}

// FormatRow converts a record into one physical row in column order.
func (t *Table) FormatRow(rec Record) []any {
	row := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		row[i] = FormatCell(rec[c.Name])
	}
	return row
}

// ParseRows parses the data rows of a read result, skipping the header row
// and rows that are entirely empty.
func (t *Table) ParseRows(values [][]any) []Record {
	if len(values) <= 1 {
		return nil
	}
	records := make([]Record, 0, len(values)-1)
	for _, row := range values[1:] {
		if isBlankRow(row) {
			continue
		}
		records = append(records, t.ParseRow(row))
	}
	return records
}

func isBlankRow(row []any) bool {
	for _, cell := range row {
		if cell == nil {
			continue
		}
		if s, ok := cell.(string); ok && s == "" {
			continue
		}
		return false
	}
	return true
}
