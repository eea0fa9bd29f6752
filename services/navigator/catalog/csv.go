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

import "strings"

// ParseTable splits raw delimited text into rows of fields.
//
// Description:
//
//	A tolerant CSV reader for an externally edited spreadsheet of unknown
//	quality. encoding/csv is deliberately not used here: it returns an error
//	on malformed quoting, and a stray quote typed into one sheet cell must
//	never take the whole catalog down. This parser degrades instead.
//
// Behavior:
//
//   - A quoted field may contain commas and newlines.
//   - Two consecutive quote characters inside a quoted field collapse to one
//     literal quote.
//   - Row boundaries are newlines outside quotes; CRLF counts as a single
//     terminator (a lone CR is also accepted as one).
//   - A quote anywhere else toggles quote state rather than erroring, so
//     `ab"cd` parses as `abcd` instead of failing.
//   - Rows whose fields are all blank after trimming are dropped; a sparse
//     row with at least one non-blank field is kept.
//   - An unterminated quote at end of input flushes whatever was read.
//
// Inputs:
//   - raw: The full text of the table. May be empty.
//
// Outputs:
//   - [][]string: Rows in input order. Never nil, possibly empty. The parser
//     itself reports no errors; callers treat zero rows as a failure.
//
// Thread Safety: Pure function, safe for concurrent use.
func ParseTable(raw string) [][]string {
	rows := make([][]string, 0, 16)
	var row []string
	var field strings.Builder
	inQuotes := false

	endField := func() {
		row = append(row, field.String())
		field.Reset()
	}
	endRow := func() {
		endField()
		if !rowIsBlank(row) {
			rows = append(rows, row)
		}
		row = nil
	}

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if inQuotes {
			if ch == '"' {
				if i+1 < len(raw) && raw[i+1] == '"' {
					field.WriteByte('"')
					i++
					continue
				}
				inQuotes = false
				continue
			}
			// Everything inside quotes is literal, including delimiters,
			// CRs, and newlines. Multi-byte runes pass through byte-wise.
			field.WriteByte(ch)
			continue
		}

		switch ch {
		case '"':
			inQuotes = true
		case ',':
			endField()
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			endRow()
		case '\n':
			endRow()
		default:
			field.WriteByte(ch)
		}
	}

	// Flush a final row that has no trailing newline.
	if field.Len() > 0 || len(row) > 0 {
		endRow()
	}

	return rows
}

// rowIsBlank reports whether every field is empty or whitespace, i.e. the
// row is a blank spreadsheet line rather than sparse data.
func rowIsBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
