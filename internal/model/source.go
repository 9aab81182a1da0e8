// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// SOURCE PROVENANCE
// =============================================================================

// SourceKind identifies what kind of knowledge item a SourceRef points at.
type SourceKind string

const (
	SourceNote     SourceKind = "note"
	SourceBookmark SourceKind = "bookmark"
	SourceFile     SourceKind = "file"
)

// KnownSourceKinds lists every source kind the retrieval backend understands.
func KnownSourceKinds() []string {
	return []string{string(SourceNote), string(SourceBookmark), string(SourceFile)}
}

// SourceRef is provenance metadata attached to a retrieval-augmented answer.
// It is auxiliary turn state, not part of the message history, and is
// replaced wholesale whenever a new full-mode turn completes.
type SourceRef struct {
	Kind    SourceKind `json:"source_type"`
	ID      string     `json:"source_id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	URL     string     `json:"url,omitempty"`
}
