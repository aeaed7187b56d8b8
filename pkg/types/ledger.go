package types

import (
	"strconv"
	"time"
)

// LedgerTable is the reserved tab that records applied migrations. No
// registered table may use this name.
const LedgerTable = "_sheetbase_migrations"

// LedgerTimeLayout is the ISO-8601 layout of the applied-at column.
const LedgerTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// LedgerColumns is the header of the ledger tab, in order.
var LedgerColumns = []string{"version", "name", "applied_at"}

// LedgerEntry is one applied migration.
type LedgerEntry struct {
	Version   int       `json:"version" yaml:"version"`
	Name      string    `json:"name" yaml:"name"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// Row formats the entry as a ledger row.
func (e LedgerEntry) Row() []any {
	return []any{float64(e.Version), e.Name, e.AppliedAt.UTC().Format(LedgerTimeLayout)}
}

// ParseLedgerRow parses a ledger row. Rows without a readable version are
// reported as not ok.
func ParseLedgerRow(row []any) (LedgerEntry, bool) {
	if len(row) == 0 {
		return LedgerEntry{}, false
	}
	v, ok := ParseCell(TypeNumber, row[0]).(float64)
	if !ok {
		return LedgerEntry{}, false
	}
	entry := LedgerEntry{Version: int(v)}
	if len(row) > 1 {
		entry.Name = KeyString(row[1])
	}
	if len(row) > 2 {
		s := KeyString(row[2])
		if ts, err := time.Parse(LedgerTimeLayout, s); err == nil {
			entry.AppliedAt = ts
		} else if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			entry.AppliedAt = ts
		}
	}
	return entry, true
}

// LedgerHeader returns the ledger header row.
func LedgerHeader() []any {
	row := make([]any, len(LedgerColumns))
	for i, c := range LedgerColumns {
		row[i] = c
	}
	return row
}

// FormatVersion renders a version for messages.
func FormatVersion(v int) string {
	return "v" + strconv.Itoa(v)
}
