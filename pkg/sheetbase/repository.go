package sheetbase

import (
	"context"
	"fmt"

	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// CreateOptions tunes Create.
type CreateOptions struct {
	SkipFKValidation bool
}

// UpdateOptions tunes Update.
type UpdateOptions struct {
	SkipFKValidation bool
}

// FindOptions tunes FindMany. Where filters records in memory; Include
// names related tables to attach.
type FindOptions struct {
	Where   func(types.Record) bool
	Include map[string]bool
}

// ReadOptions tunes ReadAll.
type ReadOptions struct {
	Include map[string]bool
}

// Repository is the CRUD surface of one table. The store has no row-level
// mutation, so every change loads the whole table and rewrites or appends.
type Repository struct {
	conn  *Connection
	table *types.Table
}

func newRepository(conn *Connection, table *types.Table) *Repository {
	return &Repository{conn: conn, table: table}
}

// Table returns the repository's schema.
func (r *Repository) Table() types.Table { return *r.table }

// Create inserts one record and returns it as stored.
func (r *Repository) Create(ctx context.Context, rec types.Record, opts CreateOptions) (types.Record, error) {
	if r.conn.ReadOnly() {
		return nil, readOnlyError()
	}
	row, issues := r.prepare(rec, true)
	if len(issues) > 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidRecord,
			fmt.Sprintf("invalid %s record", r.table.Name), issues...)
	}

	err := r.conn.Exclusive(ctx, func(ctx context.Context) error {
		values, err := r.conn.read(ctx, r.table.ReadRange())
		if err != nil {
			return err
		}

		if pk, ok := r.table.PrimaryKey(); ok {
			key := types.KeyString(row[pk.Name])
			for _, existing := range r.table.ParseRows(values) {
				if types.KeyString(existing[pk.Name]) == key {
					return errors.NewValidationError(errors.CodeDuplicateKey,
						fmt.Sprintf("%s already holds a record with %s %q", r.table.Name, pk.Name, key),
						errors.Issue{Field: pk.Name, Message: "duplicate primary key", Value: row[pk.Name]})
				}
			}
		}

		if !opts.SkipFKValidation {
			if err := r.checkForeignKeys(ctx, row, nil); err != nil {
				return err
			}
		}

		if len(values) == 0 {
			if err := r.conn.write(ctx, r.table.WriteRange(), [][]any{r.table.Header()}); err != nil {
				return err
			}
		}
		return r.conn.append(ctx, r.table.AppendRange(), [][]any{r.table.FormatRow(row)})
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FindByID returns the first record whose primary key equals id, or nil.
func (r *Repository) FindByID(ctx context.Context, id any) (types.Record, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return nil, err
	}
	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	key := types.KeyString(id)
	for _, rec := range records {
		if types.KeyString(rec[pk.Name]) == key {
			return rec, nil
		}
	}
	return nil, nil
}

// FindMany loads the table, filters it and attaches included tables.
func (r *Repository) FindMany(ctx context.Context, opts FindOptions) ([]types.Record, error) {
	if err := r.checkInclude(opts.Include); err != nil {
		return nil, err
	}
	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Where != nil {
		kept := records[:0]
		for _, rec := range records {
			if opts.Where(rec) {
				kept = append(kept, rec)
			}
		}
		records = kept
	}
	if len(opts.Include) > 0 {
		if err := r.eagerLoad(ctx, records, opts.Include); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// ReadAll returns every record of the table.
func (r *Repository) ReadAll(ctx context.Context, opts ReadOptions) ([]types.Record, error) {
	return r.FindMany(ctx, FindOptions{Include: opts.Include})
}

// Count returns the number of data rows.
func (r *Repository) Count(ctx context.Context) (int, error) {
	records, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Update merges changes into the record with the given id and rewrites the
// table. Only foreign keys present in changes are checked.
func (r *Repository) Update(ctx context.Context, id any, changes types.Record, opts UpdateOptions) (types.Record, error) {
	pk, err := r.primaryKey()
	if err != nil {
		return nil, err
	}
	if r.conn.ReadOnly() {
		return nil, readOnlyError()
	}

	var merged types.Record
	err = r.conn.Exclusive(ctx, func(ctx context.Context) error {
		records, err := r.load(ctx)
		if err != nil {
			return err
		}

		key := types.KeyString(id)
		idx := -1
		for i, rec := range records {
			if types.KeyString(rec[pk.Name]) == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.NewValidationError(errors.CodeNotFound,
				fmt.Sprintf("%s has no record with %s %q", r.table.Name, pk.Name, key),
				errors.Issue{Field: pk.Name, Message: "record not found", Value: id})
		}

		row, issues := r.prepare(records[idx].Merge(changes), false)
		if len(issues) > 0 {
			return errors.NewValidationError(errors.CodeInvalidRecord,
				fmt.Sprintf("invalid %s record", r.table.Name), issues...)
		}
		if newKey := types.KeyString(row[pk.Name]); newKey != key {
			for i, rec := range records {
				if i != idx && types.KeyString(rec[pk.Name]) == newKey {
					return errors.NewValidationError(errors.CodeDuplicateKey,
						fmt.Sprintf("%s already holds a record with %s %q", r.table.Name, pk.Name, newKey),
						errors.Issue{Field: pk.Name, Message: "duplicate primary key", Value: row[pk.Name]})
				}
			}
		}

		if !opts.SkipFKValidation {
			changed := make(map[string]bool, len(changes))
			for k := range changes {
				changed[k] = true
			}
			if err := r.checkForeignKeys(ctx, row, changed); err != nil {
				return err
			}
		}

		records[idx] = row
		merged = row
		return r.rewrite(ctx, records)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record with the given id. A missing id is a no-op.
func (r *Repository) Delete(ctx context.Context, id any) error {
	pk, err := r.primaryKey()
	if err != nil {
		return err
	}
	return r.conn.Exclusive(ctx, func(ctx context.Context) error {
		records, err := r.load(ctx)
		if err != nil {
			return err
		}
		key := types.KeyString(id)
		kept := make([]types.Record, 0, len(records))
		for _, rec := range records {
			if types.KeyString(rec[pk.Name]) != key {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return nil
		}
		return r.rewrite(ctx, kept)
	})
}

// WriteAll replaces the table contents with records. An empty set leaves
// only the header.
func (r *Repository) WriteAll(ctx context.Context, records []types.Record) error {
	if r.conn.ReadOnly() {
		return readOnlyError()
	}
	rows, err := r.prepareAll(records)
	if err != nil {
		return err
	}
	return r.conn.Exclusive(ctx, func(ctx context.Context) error {
		return r.rewrite(ctx, rows)
	})
}

// Append adds records after the existing rows, writing the header first
// when the table is empty.
func (r *Repository) Append(ctx context.Context, records []types.Record) error {
	if r.conn.ReadOnly() {
		return readOnlyError()
	}
	rows, err := r.prepareAll(records)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return r.conn.Exclusive(ctx, func(ctx context.Context) error {
		header, err := r.conn.read(ctx, r.table.HeaderRange())
		if err != nil {
			return err
		}
		if len(header) == 0 {
			if err := r.conn.write(ctx, r.table.WriteRange(), [][]any{r.table.Header()}); err != nil {
				return err
			}
		}
		values := make([][]any, len(rows))
		for i, rec := range rows {
			values[i] = r.table.FormatRow(rec)
		}
		return r.conn.append(ctx, r.table.AppendRange(), values)
	})
}

func (r *Repository) load(ctx context.Context) ([]types.Record, error) {
	values, err := r.conn.read(ctx, r.table.ReadRange())
	if err != nil {
		return nil, err
	}
	return r.table.ParseRows(values), nil
}

// rewrite clears the table and writes the header followed by records in
// the given order. Callers hold the write token.
func (r *Repository) rewrite(ctx context.Context, records []types.Record) error {
	values := make([][]any, 0, len(records)+1)
	values = append(values, r.table.Header())
	for _, rec := range records {
		values = append(values, r.table.FormatRow(rec))
	}
	if err := r.conn.clear(ctx, r.table.ClearRange()); err != nil {
		return err
	}
	return r.conn.write(ctx, r.table.WriteRange(), values)
}

func (r *Repository) primaryKey() (types.Column, error) {
	pk, ok := r.table.PrimaryKey()
	if !ok {
		return types.Column{}, errors.NewSchemaError(errors.CodeMissingPrimaryKey,
			fmt.Sprintf("table %q has no primary key", r.table.Name))
	}
	return pk, nil
}

// prepare normalizes rec against the schema. With defaults set, absent
// columns take their default first. Relation slices attached by eager
// loading are dropped.
func (r *Repository) prepare(rec types.Record, defaults bool) (types.Record, []errors.Issue) {
	var issues []errors.Issue
	for k, v := range rec {
		if _, _, ok := r.table.Column(k); ok {
			continue
		}
		if _, attached := v.([]types.Record); attached {
			continue
		}
		issues = append(issues, errors.Issue{Field: k, Message: "unknown column", Value: v})
	}

	out := make(types.Record, len(r.table.Columns))
	for _, col := range r.table.Columns {
		v, present := rec[col.Name]
		if !present && defaults && col.HasDefault() {
			v = col.DefaultValue()
		}
		if v == nil {
			if !col.Optional {
				issues = append(issues, errors.Issue{Field: col.Name, Message: "is required"})
			}
			out[col.Name] = nil
			continue
		}
		norm, msg := types.CheckValue(col.ValueType(), v)
		if msg != "" {
			issues = append(issues, errors.Issue{Field: col.Name, Message: msg, Value: v})
		}
		out[col.Name] = norm
	}
	return out, issues
}

func (r *Repository) prepareAll(records []types.Record) ([]types.Record, error) {
	rows := make([]types.Record, len(records))
	var issues []errors.Issue
	for i, rec := range records {
		row, recIssues := r.prepare(rec, true)
		for _, is := range recIssues {
			is.Field = fmt.Sprintf("[%d].%s", i, is.Field)
			issues = append(issues, is)
		}
		rows[i] = row
	}
	if len(issues) > 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidRecord,
			fmt.Sprintf("invalid %s records", r.table.Name), issues...)
	}
	return rows, nil
}

func readOnlyError() error {
	return errors.NewPermissionError(errors.CodeReadOnly, "connection has no write credential")
}
