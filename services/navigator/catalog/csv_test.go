// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseTable_SimpleRows(t *testing.T) {
	got := ParseTable("a,b,c\nd,e,f\n")
	want := [][]string{{"a", "b", "c"}, {"d", "e", "f"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTable() = %v, want %v", got, want)
	}
}

func TestParseTable_QuotedFieldKeepsDelimiterAndNewline(t *testing.T) {
	raw := "id,notes\n1,\"line one,\nline two\"\n"
	got := ParseTable(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(got), got)
	}
	want := "line one,\nline two"
	if got[1][1] != want {
		t.Errorf("quoted field = %q, want %q", got[1][1], want)
	}
}

func TestParseTable_EscapedQuoteCollapsesToLiteral(t *testing.T) {
	// A field containing a comma, a newline, and an escaped quote must
	// survive as the exact original string.
	raw := `a,"he said ""hi, there""` + "\n" + `and left",z`
	got := ParseTable(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d: %v", len(got), got)
	}
	want := "he said \"hi, there\"\nand left"
	if got[0][1] != want {
		t.Errorf("field = %q, want %q", got[0][1], want)
	}
	if got[0][2] != "z" {
		t.Errorf("trailing field = %q, want %q", got[0][2], "z")
	}
}

func TestParseTable_CRLFIsOneTerminator(t *testing.T) {
	got := ParseTable("a,b\r\nc,d\r\n")
	want := [][]string{{"a", "b"}, {"c", "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTable() = %v, want %v", got, want)
	}
}

func TestParseTable_LoneCRIsOneTerminator(t *testing.T) {
	got := ParseTable("a,b\rc,d")
	want := [][]string{{"a", "b"}, {"c", "d"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTable() = %v, want %v", got, want)
	}
}

func TestParseTable_BlankRowsDroppedSparseRowsKept(t *testing.T) {
	raw := "a,b,c\n,,\n  , ,\nd,,\n"
	got := ParseTable(raw)
	want := [][]string{{"a", "b", "c"}, {"d", "", ""}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTable() = %v, want %v", got, want)
	}
}

func TestParseTable_StrayQuoteTogglesInsteadOfErroring(t *testing.T) {
	// Malformed quoting from a hand-edited sheet must degrade, not fail.
	got := ParseTable("ab\"cd,ef\n")
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d: %v", len(got), got)
	}
	// The stray quote opens a quoted span that swallows the comma until a
	// closing toggle or end of row; the content is preserved.
	joined := strings.Join(got[0], "|")
	if !strings.Contains(joined, "ab") || !strings.Contains(joined, "ef") {
		t.Errorf("stray-quote row lost content: %v", got[0])
	}
}

func TestParseTable_UnterminatedQuoteFlushesRemainder(t *testing.T) {
	got := ParseTable("a,\"unterminated")
	want := [][]string{{"a", "unterminated"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseTable() = %v, want %v", got, want)
	}
}

func TestParseTable_EmptyInputYieldsZeroRows(t *testing.T) {
	if got := ParseTable(""); len(got) != 0 {
		t.Errorf("expected zero rows for empty input, got %v", got)
	}
	if got := ParseTable("\n\n\r\n"); len(got) != 0 {
		t.Errorf("expected zero rows for blank input, got %v", got)
	}
}

func TestParseTable_RoundTrip(t *testing.T) {
	// Any table of quote/comma/newline-free strings serialized with
	// comma-join + newline-join parses back to the original table.
	table := [][]string{
		{"id", "title", "url"},
		{"r1", "Grief Group", "https://example.org/grief"},
		{"r2", "Mentor Match", "https://example.org/mentor"},
		{"r3", "Homework Help", "https://example.org/homework"},
	}

	lines := make([]string, len(table))
	for i, row := range table {
		lines[i] = strings.Join(row, ",")
	}
	raw := strings.Join(lines, "\n")

	got := ParseTable(raw)
	if !reflect.DeepEqual(got, table) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", got, table)
	}
}
