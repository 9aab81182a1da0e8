// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "hello")
	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}
	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want %q", msg.Content, "hello")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero timestamp")
	}
}

func TestMessage_IDsUnique(t *testing.T) {
	a := NewMessage(RoleUser, "a")
	b := NewMessage(RoleUser, "b")
	if a.ID == b.ID {
		t.Error("Expected distinct message IDs")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("Role %q should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("Role \"tool\" should not be valid")
	}
}

// =============================================================================
// TITLE DERIVATION TESTS
// =============================================================================

func TestDeriveTitle_Short(t *testing.T) {
	if got := DeriveTitle("What is Go?"); got != "What is Go?" {
		t.Errorf("DeriveTitle = %q", got)
	}
}

func TestDeriveTitle_Truncates(t *testing.T) {
	long := strings.Repeat("a", 120)
	got := DeriveTitle(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis suffix, got %q", got)
	}
	if len([]rune(got)) != TitleMaxRunes {
		t.Errorf("Title length = %d runes, want %d", len([]rune(got)), TitleMaxRunes)
	}
}

func TestDeriveTitle_CollapsesNewlines(t *testing.T) {
	got := DeriveTitle("line one\r\nline two")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("Title contains newline: %q", got)
	}
}

func TestDeriveTitle_Empty(t *testing.T) {
	if got := DeriveTitle("   "); got != "New conversation" {
		t.Errorf("DeriveTitle(blank) = %q", got)
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestSession_History_ExcludesPlaceholder(t *testing.T) {
	s := NewSession()
	s.Messages = append(s.Messages,
		NewMessage(RoleUser, "first"),
		NewMessage(RoleAssistant, "answer"),
		NewMessage(RoleUser, "second"),
	)
	placeholder := NewMessage(RoleAssistant, "")
	s.Messages = append(s.Messages, placeholder)

	history := s.History(0, placeholder.ID)
	if len(history) != 3 {
		t.Fatalf("History length = %d, want 3", len(history))
	}
	for _, m := range history {
		if m.ID == placeholder.ID {
			t.Error("Placeholder leaked into history")
		}
	}
}

func TestSession_History_Limit(t *testing.T) {
	s := NewSession()
	for i := 0; i < 10; i++ {
		s.Messages = append(s.Messages, NewMessage(RoleUser, "msg"))
	}
	history := s.History(4)
	if len(history) != 4 {
		t.Errorf("History length = %d, want 4", len(history))
	}
	// Most recent messages are kept.
	if history[3].ID != s.Messages[9].ID {
		t.Error("Limit should keep the most recent messages")
	}
}

func TestSession_Clone_Independent(t *testing.T) {
	s := NewSession()
	s.Messages = append(s.Messages, NewMessage(RoleUser, "original"))
	clone := s.Clone()
	clone.Messages[0].Content = "changed"
	if s.Messages[0].Content != "original" {
		t.Error("Clone should not share message storage")
	}
}

func TestSession_MessageByID(t *testing.T) {
	s := NewSession()
	msg := NewMessage(RoleUser, "hello")
	s.Messages = append(s.Messages, msg)

	if got := s.MessageByID(msg.ID); got != msg {
		t.Error("MessageByID should return the stored message")
	}
	if got := s.MessageByID("nope"); got != nil {
		t.Error("MessageByID(unknown) should return nil")
	}
}
