// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads the support-resource table from its published CSV
// source, maps rows onto typed records via a required-column contract, and
// caches the result process-wide with a TTL.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized header names for the required catalog columns.
//
// The published sheet is edited by non-engineers, so header cells arrive in
// arbitrary casing and punctuation ("Best For", "best for?", "BEST FOR").
// They are matched only after normalizeHeaderCell.
const (
	colID          = "id"
	colTitle       = "title"
	colDescription = "description"
	colBestFor     = "best_for"
	colWhenToUse   = "when_to_use"
	colNotFor      = "not_for"
	colConnection  = "fatherlessness_connection"
	colURL         = "url"

	// colHowToStart is optional; absent columns default to "".
	colHowToStart = "how_to_start"
)

// RequiredColumns lists the eight columns that must be present (after header
// normalization) for a catalog load to succeed. Downstream scoring assumes
// every one of these fields exists on every record.
var RequiredColumns = []string{
	colID,
	colTitle,
	colDescription,
	colBestFor,
	colWhenToUse,
	colNotFor,
	colConnection,
	colURL,
}

// ResourceRecord is one row of the resource catalog.
//
// Description:
//
//	Identity fields (ID, Title, URL) are guaranteed non-empty after trimming;
//	a row that fails that check is excluded from the catalog entirely rather
//	than carried as a partial record. All descriptive fields default to the
//	empty string.
//
// Thread Safety: Records are immutable after construction. A catalog load
// builds a fresh slice; nothing mutates records in place.
type ResourceRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`

	Description string `json:"description"`
	BestFor     string `json:"best_for"`
	WhenToUse   string `json:"when_to_use"`
	NotFor      string `json:"not_for"`

	// Connection is the "fatherlessness_connection" column: free text tying
	// the resource to the constituency this service exists for. It feeds the
	// mission-relevance boost during scoring.
	Connection string `json:"fatherlessness_connection"`

	// HowToStart is the only optional column. Empty when the sheet omits it.
	HowToStart string `json:"how_to_start,omitempty"`
}

// DescriptiveText concatenates every descriptive field into one haystack
// string for tokenization. Identity fields are excluded: IDs and URLs are
// opaque keys, not match material.
func (r ResourceRecord) DescriptiveText() string {
	return strings.Join([]string{
		r.Description,
		r.BestFor,
		r.WhenToUse,
		r.NotFor,
		r.Connection,
	}, " ")
}

// GuidanceText concatenates the fields that describe when and for whom the
// resource applies. The crisis predicate scans this plus the title, matching
// the usage-guidance scope rather than the full haystack.
func (r ResourceRecord) GuidanceText() string {
	return strings.Join([]string{
		r.Title,
		r.Description,
		r.WhenToUse,
		r.BestFor,
	}, " ")
}

// validRecord reports whether the row carries all three identity fields.
func validRecord(r ResourceRecord) bool {
	return r.ID != "" && r.Title != "" && r.URL != ""
}

// ErrEmptyCatalog indicates the source parsed to zero usable rows. It is a
// configuration error: there is no safe degraded mode, so the whole request
// fails loudly rather than recommending from nothing.
var ErrEmptyCatalog = errors.New("catalog contains no usable rows")

// FetchError reports a non-success response from the catalog source.
//
// Body is truncated at fetch time so the error can be logged verbatim
// without dumping an arbitrary payload into the logs.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("catalog source returned status %d: %s", e.Status, e.Body)
}

// MissingColumnError reports a required column absent from the normalized
// header row. It names the column so the sheet owner can fix it without
// reading server code.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("catalog header is missing required column %q", e.Column)
}
