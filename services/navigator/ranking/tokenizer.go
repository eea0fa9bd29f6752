// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranking scores catalog records against a request and selects the
// candidates worth recommending.
//
// # Description
//
// The pipeline is: tokenize the message (tokenizer.go), score every record
// against the token sets and urgency (scorer.go, with the predicates in
// policy.go), then rank, filter, and bound the results (selector.go). Every
// stage is pure: same inputs, same outputs, no network, no shared state.
package ranking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenRunes is the shortest token kept after normalization. One- and
// two-letter fragments ("i", "ok", stray punctuation remnants) carry no
// ranking signal.
const minTokenRunes = 3

// Normalize lowercases text and strips everything but letters and digits.
//
// Description:
//
//	Every rune that is not a letter or digit becomes a space, runs of
//	whitespace collapse to one space, and the ends are trimmed. Pure and
//	deterministic.
//
// Inputs:
//
//	text - Arbitrary text. May be empty.
//
// Outputs:
//
//	string - The normalized form. Empty when no letters or digits remain.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenizer turns text into the filtered token stream the scorer consumes.
//
// Description:
//
//	Splits normalized text on spaces, drops tokens shorter than three
//	runes, and drops stopwords. The stopword set is fixed at construction.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a Tokenizer with the given stopword set.
//
// Inputs:
//
//	stopwords - Lowercased words to drop. May be nil for no filtering.
//
// Outputs:
//
//	*Tokenizer - Ready to use.
func NewTokenizer(stopwords map[string]struct{}) *Tokenizer {
	if stopwords == nil {
		stopwords = map[string]struct{}{}
	}
	return &Tokenizer{stopwords: stopwords}
}

// Tokenize returns the filtered token sequence for text.
//
// Description:
//
//	Order follows the input text. Duplicates are kept; callers wanting
//	set semantics use TokenSet.
//
// Inputs:
//
//	text - Arbitrary text.
//
// Outputs:
//
//	[]string - Filtered tokens, possibly empty, never nil.
func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.Fields(Normalize(text))
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if utf8.RuneCountInString(tok) < minTokenRunes {
			continue
		}
		if _, stop := t.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// TokenSet returns the distinct tokens of text as a lookup set.
//
// Inputs:
//
//	text - Arbitrary text.
//
// Outputs:
//
//	map[string]struct{} - One entry per distinct token. Never nil.
func (t *Tokenizer) TokenSet(text string) map[string]struct{} {
	tokens := t.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
