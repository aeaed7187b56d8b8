// Package a1 parses and formats A1-notation ranges such as "Orders!A1:D" or
// "'My Tab'!B2:C10". Columns and rows are zero-based internally.
package a1

import (
	"fmt"
	"strconv"
	"strings"
)

// Unbounded marks an open end of a range ("A1:D" has no row bound).
const Unbounded = -1

// Range is a parsed A1 range. StartCol/StartRow are always set; EndCol and
// EndRow may be Unbounded.
type Range struct {
	Sheet    string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ColumnLetter converts a zero-based column index to its letter form
// (0 -> "A", 25 -> "Z", 26 -> "AA").
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var buf []byte
	n := index + 1
	for n > 0 {
		n--
		buf = append([]byte{byte('A' + n%26)}, buf...)
		n /= 26
	}
	return string(buf)
}

// ColumnIndex converts column letters to a zero-based index.
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("a1: empty column")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("a1: invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// QuoteSheet quotes a sheet name when it contains anything but letters,
// digits and underscores.
func QuoteSheet(name string) string {
	plain := name != ""
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Columns returns "Sheet!A1:<last>" covering count columns, header included.
func Columns(sheet string, count int) string {
	return fmt.Sprintf("%s!A1:%s", QuoteSheet(sheet), ColumnLetter(count-1))
}

// Row returns "Sheet!A<row>:<last><row>" for a zero-based row.
func Row(sheet string, count, row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", QuoteSheet(sheet), row+1, ColumnLetter(count-1), row+1)
}

// WholeColumns returns "Sheet!A:<last>".
func WholeColumns(sheet string, count int) string {
	return fmt.Sprintf("%s!A:%s", QuoteSheet(sheet), ColumnLetter(count-1))
}

// Cell returns "Sheet!<col><row>" for zero-based coordinates.
func Cell(sheet string, col, row int) string {
	return fmt.Sprintf("%s!%s%d", QuoteSheet(sheet), ColumnLetter(col), row+1)
}

// Parse parses an A1 range. A bare sheet name addresses the whole sheet.
func Parse(s string) (Range, error) {
	sheet, ref, err := splitSheet(s)
	if err != nil {
		return Range{}, err
	}
	r := Range{Sheet: sheet, EndCol: Unbounded, EndRow: Unbounded}
	if ref == "" {
		return r, nil
	}

	start, end, hasEnd := strings.Cut(ref, ":")
	sc, sr, err := parseCell(start)
	if err != nil {
		return Range{}, fmt.Errorf("a1: %q: %w", s, err)
	}
	if sc == Unbounded {
		sc = 0
	}
	if sr == Unbounded {
		sr = 0
	}
	r.StartCol, r.StartRow = sc, sr

	if !hasEnd {
		// A single cell or a single column/row reference.
		ec, er, _ := parseCell(start)
		r.EndCol, r.EndRow = ec, er
		return r, nil
	}

	ec, er, err := parseCell(end)
	if err != nil {
		return Range{}, fmt.Errorf("a1: %q: %w", s, err)
	}
	r.EndCol, r.EndRow = ec, er
	if r.EndCol != Unbounded && r.EndCol < r.StartCol {
		return Range{}, fmt.Errorf("a1: %q: end column before start column", s)
	}
	if r.EndRow != Unbounded && r.EndRow < r.StartRow {
		return Range{}, fmt.Errorf("a1: %q: end row before start row", s)
	}
	return r, nil
}

// String formats the range back to A1 notation.
func (r Range) String() string {
	start := ColumnLetter(r.StartCol) + strconv.Itoa(r.StartRow+1)
	if r.EndCol == r.StartCol && r.EndRow == r.StartRow {
		return QuoteSheet(r.Sheet) + "!" + start
	}
	end := ""
	if r.EndCol != Unbounded {
		end = ColumnLetter(r.EndCol)
	}
	if r.EndRow != Unbounded {
		if end == "" {
			end = ColumnLetter(r.StartCol)
		}
		end += strconv.Itoa(r.EndRow + 1)
	}
	if end == "" {
		return QuoteSheet(r.Sheet) + "!" + start + ":" + ColumnLetter(r.StartCol)
	}
	return QuoteSheet(r.Sheet) + "!" + start + ":" + end
}

// Contains reports whether the zero-based cell lies inside the range.
func (r Range) Contains(col, row int) bool {
	if col < r.StartCol || row < r.StartRow {
		return false
	}
	if r.EndCol != Unbounded && col > r.EndCol {
		return false
	}
	if r.EndRow != Unbounded && row > r.EndRow {
		return false
	}
	return true
}

func splitSheet(s string) (string, string, error) {
	if strings.HasPrefix(s, "'") {
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			if s[i] != '\'' {
				b.WriteByte(s[i])
				continue
			}
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			rest := s[i+1:]
			if rest == "" {
				return b.String(), "", nil
			}
			if rest[0] != '!' {
				return "", "", fmt.Errorf("a1: %q: expected '!' after sheet name", s)
			}
			return b.String(), rest[1:], nil
		}
		return "", "", fmt.Errorf("a1: %q: unterminated sheet name", s)
	}
	sheet, ref, _ := strings.Cut(s, "!")
	if sheet == "" {
		return "", "", fmt.Errorf("a1: %q: missing sheet name", s)
	}
	return sheet, ref, nil
}

// parseCell parses "B12", "B" or "12". Missing parts come back Unbounded.
func parseCell(s string) (int, int, error) {
	if s == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}
	i := 0
	for i < len(s) && (s[i] >= 'A' && s[i] <= 'Z' || s[i] >= 'a' && s[i] <= 'z') {
		i++
	}
	col, row := Unbounded, Unbounded
	if i > 0 {
		c, err := ColumnIndex(s[:i])
		if err != nil {
			return 0, 0, err
		}
		col = c
	}
	if i < len(s) {
		n, err := strconv.Atoi(s[i:])
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("invalid row in %q", s)
		}
		row = n - 1
	}
	return col, row, nil
}
