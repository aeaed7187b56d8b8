package a1

import "testing"

func TestColumnLetterRoundTrip(t *testing.T) {
	tests := []struct {
		index  int
		letter string
	}{
		{0, "A"},
		{3, "D"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
	}

	for _, tt := range tests {
		if got := ColumnLetter(tt.index); got != tt.letter {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.index, got, tt.letter)
		}
		idx, err := ColumnIndex(tt.letter)
		if err != nil {
			t.Fatalf("ColumnIndex(%q): %v", tt.letter, err)
		}
		if idx != tt.index {
			t.Errorf("ColumnIndex(%q) = %d, want %d", tt.letter, idx, tt.index)
		}
	}
}

func TestColumnIndexRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "A1", "-"} {
		if _, err := ColumnIndex(s); err == nil {
			t.Errorf("ColumnIndex(%q) should fail", s)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Range
	}{
		{"Orders!A1:D", Range{Sheet: "Orders", StartCol: 0, StartRow: 0, EndCol: 3, EndRow: Unbounded}},
		{"Orders!A:D", Range{Sheet: "Orders", StartCol: 0, StartRow: 0, EndCol: 3, EndRow: Unbounded}},
		{"Orders!B2:C10", Range{Sheet: "Orders", StartCol: 1, StartRow: 1, EndCol: 2, EndRow: 9}},
		{"Orders!A1", Range{Sheet: "Orders", StartCol: 0, StartRow: 0, EndCol: 0, EndRow: 0}},
		{"Orders!1:1", Range{Sheet: "Orders", StartCol: 0, StartRow: 0, EndCol: Unbounded, EndRow: 0}},
		{"Orders", Range{Sheet: "Orders", EndCol: Unbounded, EndRow: Unbounded}},
		{"'My Tab'!A1:B", Range{Sheet: "My Tab", StartCol: 0, StartRow: 0, EndCol: 1, EndRow: Unbounded}},
		{"'It''s'!C3", Range{Sheet: "It's", StartCol: 2, StartRow: 2, EndCol: 2, EndRow: 2}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"!A1", "'open!A1", "Orders!D1:A1", "Orders!A5:A2", "Orders!A0"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Orders":  "Orders",
		"order_1": "order_1",
		"My Tab":  "'My Tab'",
		"It's":    "'It''s'",
		"a-b":     "'a-b'",
	}
	for in, want := range tests {
		if got := QuoteSheet(in); got != want {
			t.Errorf("QuoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDerivedRanges(t *testing.T) {
	if got := Columns("Items", 3); got != "Items!A1:C" {
		t.Errorf("Columns = %q", got)
	}
	if got := WholeColumns("Items", 3); got != "Items!A:C" {
		t.Errorf("WholeColumns = %q", got)
	}
	if got := Cell("My Tab", 1, 0); got != "'My Tab'!B1" {
		t.Errorf("Cell = %q", got)
	}
	if got := Row("Items", 3, 0); got != "Items!A1:C1" {
		t.Errorf("Row = %q", got)
	}
}

func TestRangeContains(t *testing.T) {
	r, err := Parse("S!B2:C")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Contains(1, 1) || !r.Contains(2, 500) {
		t.Error("expected cells inside range")
	}
	if r.Contains(0, 1) || r.Contains(3, 1) || r.Contains(1, 0) {
		t.Error("expected cells outside range")
	}
}

func TestRangeStringRoundTrip(t *testing.T) {
	for _, s := range []string{"Orders!A1:D", "Orders!B2:C10", "Orders!A1", "'My Tab'!A1:B"} {
		r, err := Parse(s)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}
