// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

// ClassifierError wraps any failure of an intent-classification call:
// transport errors, non-success provider status, or unparseable output.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string {
	return "classifier: " + e.Err.Error()
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// RewriterError wraps any failure of a reply-composition call.
type RewriterError struct {
	Err error
}

func (e *RewriterError) Error() string {
	return "rewriter: " + e.Err.Error()
}

func (e *RewriterError) Unwrap() error { return e.Err }
