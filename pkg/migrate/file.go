package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk form of declarative migrations.
type File struct {
	Migrations []FileMigration `json:"migrations" yaml:"migrations"`
}

// FileMigration is one migration made of structural steps.
type FileMigration struct {
	Version int    `json:"version" yaml:"version"`
	Name    string `json:"name" yaml:"name"`
	Steps   []Step `json:"steps" yaml:"steps"`
}

// Step is a single structural operation. Exactly one field is set.
type Step struct {
	CreateTable  *CreateTableStep  `json:"create_table,omitempty" yaml:"create_table,omitempty"`
	AddColumn    *AddColumnStep    `json:"add_column,omitempty" yaml:"add_column,omitempty"`
	RemoveColumn *RemoveColumnStep `json:"remove_column,omitempty" yaml:"remove_column,omitempty"`
	RenameColumn *RenameColumnStep `json:"rename_column,omitempty" yaml:"rename_column,omitempty"`
	RenameTable  *RenameTableStep  `json:"rename_table,omitempty" yaml:"rename_table,omitempty"`
}

type CreateTableStep struct {
	Table   string   `json:"table" yaml:"table"`
	Columns []string `json:"columns" yaml:"columns"`
}

type AddColumnStep struct {
	Table  string `json:"table" yaml:"table"`
	Column string `json:"column" yaml:"column"`
	Index  *int   `json:"index,omitempty" yaml:"index,omitempty"`
}

type RemoveColumnStep struct {
	Table string `json:"table" yaml:"table"`
	Index int    `json:"index" yaml:"index"`
}

type RenameColumnStep struct {
	Table string `json:"table" yaml:"table"`
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
}

type RenameTableStep struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// LoadFile reads declarative migrations from a YAML or JSON file.
func LoadFile(path string) ([]Migration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration file: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes declarative migrations; ext selects the format.
func Parse(data []byte, ext string) ([]Migration, error) {
	var f File
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML migrations: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse JSON migrations: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported migration file format: %s", ext)
	}

	out := make([]Migration, len(f.Migrations))
	for i, fm := range f.Migrations {
		for j, step := range fm.Steps {
			if n := step.count(); n != 1 {
				return nil, fmt.Errorf("migration %d (%s) step %d: expected exactly one operation, got %d", fm.Version, fm.Name, j, n)
			}
		}
		steps := fm.Steps
		out[i] = Migration{
			Version: fm.Version,
			Name:    fm.Name,
			Up: func(ctx context.Context, m *Context) error {
				for j, step := range steps {
					if err := step.apply(ctx, m); err != nil {
						return fmt.Errorf("step %d: %w", j, err)
					}
				}
				return nil
			},
		}
	}
	return out, nil
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{s.CreateTable != nil, s.AddColumn != nil, s.RemoveColumn != nil, s.RenameColumn != nil, s.RenameTable != nil} {
		if set {
			n++
		}
	}
	return n
}

func (s Step) apply(ctx context.Context, m *Context) error {
	switch {
	case s.CreateTable != nil:
		return m.CreateTable(ctx, s.CreateTable.Table, s.CreateTable.Columns...)
	case s.AddColumn != nil:
		if s.AddColumn.Index != nil {
			return m.AddColumn(ctx, s.AddColumn.Table, s.AddColumn.Column, *s.AddColumn.Index)
		}
		return m.AddColumn(ctx, s.AddColumn.Table, s.AddColumn.Column)
	case s.RemoveColumn != nil:
		return m.RemoveColumn(ctx, s.RemoveColumn.Table, s.RemoveColumn.Index)
	case s.RenameColumn != nil:
		return m.RenameColumn(ctx, s.RenameColumn.Table, s.RenameColumn.Index, s.RenameColumn.Name)
	case s.RenameTable != nil:
		return m.RenameTable(ctx, s.RenameTable.From, s.RenameTable.To)
	}
	return fmt.Errorf("empty step")
}
