// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

// =============================================================================
// QUICK ENDPOINT TYPES
// =============================================================================

// ClientContext is optional ambient context sent with quick requests.
type ClientContext struct {
	Location string `json:"location,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// QuickRequest is the stateless request body. History is deliberately
// absent: the quick endpoint sees only the current message.
type QuickRequest struct {
	Message     string         `json:"message"`
	Mode        string         `json:"mode"`
	SkipSummary bool           `json:"skip_summary"`
	Context     *ClientContext `json:"context,omitempty"`
}

// QuickResponse is the quick endpoint's single structured result.
// FallbackNeeded set means the quick path declined and the chat endpoint
// must handle the turn.
type QuickResponse struct {
	Content         string `json:"content"`
	FallbackNeeded  bool   `json:"fallback_needed"`
	TokensEstimated int    `json:"tokens_estimated"`
	RuleMatched     bool   `json:"rule_matched"`
	ToolUsed        string `json:"tool_used"` // null on the wire when unset
}

// =============================================================================
// CHAT ENDPOINT TYPES
// =============================================================================

// HistoryMessage is one prior turn's message in a chat request.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the streaming request body: the current message plus the
// full prior history and the retrieval toggles.
type ChatRequest struct {
	Message          string           `json:"message"`
	History          []HistoryMessage `json:"history"`
	UseKnowledge     bool             `json:"use_knowledge"`
	KnowledgeSources []string         `json:"knowledge_sources"`
	MaxResults       int              `json:"max_results"`
}
