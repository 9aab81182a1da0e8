// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arlenmoor/quill/internal/util"
)

// TitleMaxRunes is the display length a derived session title is truncated to.
const TitleMaxRunes = 50

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one conversation thread with its ordered message history.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages in insertion order. Never reordered.
	Messages []*Message `json:"messages"`
}

// NewSession creates an empty session with a generated ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// MessageByID returns the message with the given ID, or nil.
func (s *Session) MessageByID(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// History returns copies of the session's messages, excluding any message
// whose ID appears in exclude and skipping empty assistant placeholders.
// When limit > 0 only the most recent limit messages are returned.
func (s *Session) History(limit int, exclude ...string) []Message {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	history := make([]Message, 0, len(s.Messages))
	for _, msg := range s.Messages {
		if skip[msg.ID] {
			continue
		}
		if msg.Role == RoleAssistant && msg.IsEmpty() {
			continue
		}
		history = append(history, *msg)
	}

	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// =============================================================================
// TITLE DERIVATION
// =============================================================================

// DisplayTitle returns the session title or a default for untitled sessions.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New conversation"
}

// DeriveTitle builds a session title from the first user message: newlines
// collapsed, rune-truncated with an ellipsis marker.
func DeriveTitle(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = strings.ReplaceAll(content, "\r", "")
	content = strings.TrimSpace(content)
	if content == "" {
		return "New conversation"
	}
	return util.TruncateRunes(content, TitleMaxRunes)
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}
