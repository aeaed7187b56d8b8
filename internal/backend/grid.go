package backend

import (
	"fmt"

	"github.com/sheetbase/sheetbase/internal/a1"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Default grid size reported in tab metadata.
const (
	minGridRows    = 1000
	minGridColumns = 26
)

// tab is one grid. cells holds rows of cells; nil is an empty cell. The
// grid is kept compact: no trailing empty cells in a row and no trailing
// empty rows.
type tab struct {
	id    int64
	title string
	cells [][]any
}

func (t *tab) clone() *tab {
	cp := &tab{id: t.id, title: t.title, cells: make([][]any, len(t.cells))}
	for i, row := range t.cells {
		cp.cells[i] = append([]any(nil), row...)
	}
	return cp
}

func (t *tab) width() int {
	w := 0
	for _, row := range t.cells {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

func (t *tab) set(r, c int, v any) {
	for len(t.cells) <= r {
		t.cells = append(t.cells, nil)
	}
	row := t.cells[r]
	for len(row) <= c {
		row = append(row, nil)
	}
	row[c] = v
	t.cells[r] = row
}

func (t *tab) compact() {
	for i, row := range t.cells {
		n := len(row)
		for n > 0 && row[n-1] == nil {
			n--
		}
		t.cells[i] = row[:n]
	}
	n := len(t.cells)
	for n > 0 && len(t.cells[n-1]) == 0 {
		n--
	}
	t.cells = t.cells[:n]
}

// read returns the values inside rg. Empty cells inside a row come back as
// "", trailing empty cells and rows are omitted.
func (t *tab) read(rg a1.Range) [][]any {
	last := len(t.cells) - 1
	if rg.EndRow != a1.Unbounded && rg.EndRow < last {
		last = rg.EndRow
	}

	var out [][]any
	for r := rg.StartRow; r <= last; r++ {
		row := t.cells[r]
		end := len(row) - 1
		if rg.EndCol != a1.Unbounded && rg.EndCol < end {
			end = rg.EndCol
		}
		var vals []any
		for c := rg.StartCol; c <= end; c++ {
			v := row[c]
			if v == nil {
				v = ""
			}
			vals = append(vals, v)
		}
		for len(vals) > 0 && vals[len(vals)-1] == "" {
			vals = vals[:len(vals)-1]
		}
		if vals == nil {
			vals = []any{}
		}
		out = append(out, vals)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

// write stores values with their top-left corner at the start of rg. A
// single-cell range is an anchor; a wider range bounds the write.
func (t *tab) write(rg a1.Range, values [][]any) error {
	anchor := rg.EndCol == rg.StartCol && rg.EndRow == rg.StartRow
	if !anchor {
		for i, row := range values {
			if rg.EndRow != a1.Unbounded && rg.StartRow+i > rg.EndRow {
				return fmt.Errorf("tried writing to row %d outside of range %s", rg.StartRow+i+1, rg)
			}
			if rg.EndCol != a1.Unbounded && rg.StartCol+len(row)-1 > rg.EndCol {
				return fmt.Errorf("tried writing to column %s outside of range %s",
					a1.ColumnLetter(rg.StartCol+len(row)-1), rg)
			}
		}
	}

	for i, row := range values {
		for j, v := range row {
			t.set(rg.StartRow+i, rg.StartCol+j, normalize(v))
		}
	}
	t.compact()
	return nil
}

// appendRows writes values below the last row holding data inside rg's
// columns and returns the range that was written.
func (t *tab) appendRows(rg a1.Range, values [][]any) a1.Range {
	last := rg.StartRow - 1
	for r := rg.StartRow; r < len(t.cells); r++ {
		row := t.cells[r]
		end := len(row) - 1
		if rg.EndCol != a1.Unbounded && rg.EndCol < end {
			end = rg.EndCol
		}
		for c := rg.StartCol; c <= end; c++ {
			if row[c] != nil {
				last = r
				break
			}
		}
	}

	start := last + 1
	width := 0
	for i, row := range values {
		if len(row) > width {
			width = len(row)
		}
		for j, v := range row {
			t.set(start+i, rg.StartCol+j, normalize(v))
		}
	}
	t.compact()

	if width == 0 {
		width = 1
	}
	return a1.Range{
		Sheet:    t.title,
		StartCol: rg.StartCol,
		StartRow: start,
		EndCol:   rg.StartCol + width - 1,
		EndRow:   start + len(values) - 1,
	}
}

func (t *tab) clear(rg a1.Range) {
	last := len(t.cells) - 1
	if rg.EndRow != a1.Unbounded && rg.EndRow < last {
		last = rg.EndRow
	}
	for r := rg.StartRow; r <= last; r++ {
		row := t.cells[r]
		end := len(row) - 1
		if rg.EndCol != a1.Unbounded && rg.EndCol < end {
			end = rg.EndCol
		}
		for c := rg.StartCol; c <= end; c++ {
			row[c] = nil
		}
	}
	t.compact()
}

func (t *tab) insertColumns(index, count int) {
	for i, row := range t.cells {
		if len(row) <= index {
			continue
		}
		grown := make([]any, 0, len(row)+count)
		grown = append(grown, row[:index]...)
		grown = append(grown, make([]any, count)...)
		grown = append(grown, row[index:]...)
		t.cells[i] = grown
	}
}

func (t *tab) deleteColumns(index, count int) {
	for i, row := range t.cells {
		if len(row) <= index {
			continue
		}
		end := index + count
		if end > len(row) {
			end = len(row)
		}
		t.cells[i] = append(row[:index:index], row[end:]...)
	}
	t.compact()
}

func (t *tab) properties(index int) transport.TabProperties {
	rows, cols := len(t.cells), t.width()
	if rows < minGridRows {
		rows = minGridRows
	}
	if cols < minGridColumns {
		cols = minGridColumns
	}
	return transport.TabProperties{TabID: t.id, Title: t.title, Index: index, Rows: rows, Columns: cols}
}

// normalize converts an incoming value to its stored form. Empty strings
// and nil clear the cell.
func normalize(v any) any {
	v = types.FormatCell(v)
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}
