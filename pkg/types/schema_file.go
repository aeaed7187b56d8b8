package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaFile is the on-disk form of a set of table definitions.
type SchemaFile struct {
	Tables []Table `json:"tables" yaml:"tables"`
}

// LoadSchemaFile reads table definitions from a YAML or JSON file.
func LoadSchemaFile(path string) ([]Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchema(data, filepath.Ext(path))
}

// ParseSchema decodes table definitions; ext selects the format.
func ParseSchema(data []byte, ext string) ([]Table, error) {
	var sf SchemaFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("failed to parse YAML schema: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &sf); err != nil {
			return nil, fmt.Errorf("failed to parse JSON schema: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema file format: %s", ext)
	}

	for i := range sf.Tables {
		for j := range sf.Tables[i].Columns {
			col := &sf.Tables[i].Columns[j]
			// YAML decodes integers as int; keep defaults in stored form.
			if col.Default != nil {
				col.Default = FormatCell(col.Default)
			}
		}
	}
	return sf.Tables, nil
}
