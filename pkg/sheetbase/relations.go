package sheetbase

import (
	"context"
	"fmt"

	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// checkForeignKeys verifies that every non-nil foreign key of rec points at
// an existing row. With changed set, only those columns are checked. Each
// target table is read once.
func (r *Repository) checkForeignKeys(ctx context.Context, rec types.Record, changed map[string]bool) error {
	targets := make(map[string]map[string]bool)
	var issues []errors.Issue

	for _, rel := range r.conn.relations[r.table.Name] {
		v := rec[rel.Column]
		if v == nil {
			continue
		}
		if changed != nil && !changed[rel.Column] {
			continue
		}

		keys, ok := targets[rel.TargetTable]
		if !ok {
			target := r.conn.tables[rel.TargetTable]
			values, err := r.conn.read(ctx, target.ReadRange())
			if err != nil {
				return err
			}
			keys = make(map[string]bool)
			for _, row := range target.ParseRows(values) {
				for _, col := range target.Columns {
					// Index every column; relations may target a non-key column.
					if row[col.Name] != nil {
						keys[col.Name+"\x00"+types.KeyString(row[col.Name])] = true
					}
				}
			}
			targets[rel.TargetTable] = keys
		}

		if !keys[rel.TargetColumn+"\x00"+types.KeyString(v)] {
			issues = append(issues, errors.Issue{
				Field:   rel.Column,
				Message: fmt.Sprintf("references a missing %s.%s", rel.TargetTable, rel.TargetColumn),
				Value:   v,
			})
		}
	}

	if len(issues) > 0 {
		return errors.NewValidationError(errors.CodeForeignKey,
			fmt.Sprintf("foreign key check failed for %s", r.table.Name), issues...)
	}
	return nil
}

func (r *Repository) checkInclude(include map[string]bool) error {
	for _, name := range sortedKeys(include) {
		if _, ok := r.conn.tables[name]; !ok {
			return r.conn.unknownTable(name)
		}
		if _, _, ok := r.table.Column(name); ok && include[name] {
			return errors.NewSchemaError(errors.CodeInvalidOptions,
				fmt.Sprintf("cannot include %q: %s has a column with that name", name, r.table.Name))
		}
	}
	return nil
}

// eagerLoad attaches, under each included table's name, the related records
// whose foreign key equals the primary record's referenced column. All
// included tables are fetched in one batch read.
func (r *Repository) eagerLoad(ctx context.Context, records []types.Record, include map[string]bool) error {
	var names []string
	for _, name := range sortedKeys(include) {
		if include[name] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}

	ranges := make([]string, len(names))
	for i, name := range names {
		ranges[i] = r.conn.tables[name].ReadRange()
	}
	blocks, err := r.conn.batchRead(ctx, ranges)
	if err != nil {
		return err
	}

	for i, name := range names {
		related := r.conn.tables[name].ParseRows(blocks[i])
		rel, ok := r.backRelation(name)

		groups := make(map[string][]types.Record)
		if ok {
			for _, child := range related {
				if fk := child[rel.Column]; fk != nil {
					key := types.KeyString(fk)
					groups[key] = append(groups[key], child)
				}
			}
		}

		for _, rec := range records {
			children := []types.Record{}
			if ok && rec[rel.TargetColumn] != nil {
				if g := groups[types.KeyString(rec[rel.TargetColumn])]; len(g) > 0 {
					children = append(children, g...)
				}
			}
			rec[name] = children
		}
	}
	return nil
}

// backRelation returns the first relation declared by table name that
// points at this repository's table.
func (r *Repository) backRelation(name string) (types.Relation, bool) {
	for _, rel := range r.conn.relations[name] {
		if rel.TargetTable == r.table.Name {
			return rel, true
		}
	}
	return types.Relation{}, false
}
