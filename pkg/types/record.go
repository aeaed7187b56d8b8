// Package types provides the core value types of Sheetbase: table schemas,
// records, relations and migration ledger entries.
package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record maps column names to scalar values. Eager-loaded relations are
// attached as []Record under the related table's name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every key of changes overwritten.
func (r Record) Merge(changes Record) Record {
	out := r.Clone()
	for k, v := range changes {
		out[k] = v
	}
	return out
}

// ParseCell converts a raw cell into the column's scalar form.
// Empty cells become nil.
func ParseCell(t ColumnType, cell any) any {
	if cell == nil {
		return nil
	}
	if s, ok := cell.(string); ok && s == "" {
		return nil
	}

	switch t {
	case TypeNumber:
		switch v := cell.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f
			}
			return v
		default:
			if f, ok := toFloat(v); ok {
				return f
			}
			return cell
		}
	case TypeBoolean:
		switch v := cell.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true
			case "false":
				return false
			}
			return v
		}
		return cell
	default:
		return KeyString(cell)
	}
}

// FormatCell converts a record value into what is written to the store.
func FormatCell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case bool, string, float64:
		return x
	default:
		if f, ok := toFloat(x); ok {
			return f
		}
		return fmt.Sprint(x)
	}
}

// KeyString is the string form used to compare keys: primary-key lookups
// and foreign-key matching both compare values this way.
func KeyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	default:
		if f, ok := toFloat(x); ok {
			return formatFloat(f)
		}
		return fmt.Sprint(x)
	}
}

// CheckValue normalizes v for column type t. It returns a non-empty message
// when v cannot be stored in the column.
func CheckValue(t ColumnType, v any) (any, string) {
	if v == nil {
		return nil, ""
	}
	switch t {
	case TypeNumber:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return v, "expected a number"
			}
			return f, ""
		}
		if f, ok := toFloat(v); ok {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return v, "expected a finite number"
			}
			return f, ""
		}
		return v, "expected a number"
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, ""
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true":
				return true, ""
			case "false":
				return false, ""
			}
		}
		return v, "expected a boolean"
	case TypeDate:
		switch x := v.(type) {
		case time.Time:
			return x.UTC().Format(time.RFC3339), ""
		case string:
			return x, ""
		}
		return v, "expected a date string"
	default:
		if s, ok := v.(string); ok {
			return s, ""
		}
		return v, "expected text"
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
