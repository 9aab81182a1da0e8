// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"testing"

	"github.com/arlenmoor/quill/internal/model"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := New()
	id := s.CreateSession()
	if id == "" {
		t.Fatal("Expected non-empty session id")
	}
	sess := s.GetSession(id)
	if sess == nil {
		t.Fatal("GetSession returned nil for fresh session")
	}
	if sess.MessageCount() != 0 {
		t.Errorf("New session has %d messages, want 0", sess.MessageCount())
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s := New()
	if got := s.GetSession("missing"); got != nil {
		t.Error("GetSession(unknown) should return nil")
	}
}

func TestStore_TitleFixedOnFirstUserMessage(t *testing.T) {
	s := New()
	id := s.CreateSession()

	s.AppendMessage(id, model.RoleUser, "first question")
	if got := s.GetSession(id).Title; got != "first question" {
		t.Fatalf("Title = %q, want %q", got, "first question")
	}

	// Later user messages must not overwrite the title.
	s.AppendMessage(id, model.RoleUser, "second question")
	if got := s.GetSession(id).Title; got != "first question" {
		t.Errorf("Title overwritten to %q", got)
	}
}

func TestStore_TitleNotSetByAssistant(t *testing.T) {
	s := New()
	id := s.CreateSession()
	s.AppendMessage(id, model.RoleAssistant, "hello, how can I help?")
	if got := s.GetSession(id).Title; got != "" {
		t.Errorf("Assistant message set title %q", got)
	}
}

func TestStore_AppendUnknownSession(t *testing.T) {
	s := New()
	if got := s.AppendMessage("missing", model.RoleUser, "x"); got != "" {
		t.Errorf("AppendMessage(unknown) = %q, want empty", got)
	}
}

func TestStore_SetMessageContent(t *testing.T) {
	s := New()
	id := s.CreateSession()
	mid := s.AppendMessage(id, model.RoleAssistant, "")

	s.SetMessageContent(id, mid, "partial")
	s.SetMessageContent(id, mid, "partial text")
	// Idempotent: repeated identical write is harmless.
	s.SetMessageContent(id, mid, "partial text")

	got := s.GetSession(id).MessageByID(mid)
	if got == nil || got.Content != "partial text" {
		t.Fatalf("Content = %v, want %q", got, "partial text")
	}
}

func TestStore_SetMessageContentUnknownIDs(t *testing.T) {
	s := New()
	id := s.CreateSession()
	mid := s.AppendMessage(id, model.RoleAssistant, "keep")

	// Both unknown session and unknown message must be no-ops.
	s.SetMessageContent("missing", mid, "x")
	s.SetMessageContent(id, "missing", "x")

	if got := s.GetSession(id).MessageByID(mid).Content; got != "keep" {
		t.Errorf("Content = %q, want %q", got, "keep")
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	s := New()
	first := s.CreateSession()
	second := s.CreateSession()
	third := s.CreateSession()

	list := s.ListSessions()
	if len(list) != 3 {
		t.Fatalf("ListSessions length = %d, want 3", len(list))
	}
	if list[0].ID != third || list[1].ID != second || list[2].ID != first {
		t.Error("ListSessions should order most recently created first")
	}
}

func TestStore_DeleteClearsSelection(t *testing.T) {
	s := New()
	id := s.CreateSession()
	s.SelectSession(id)
	if s.Selected() != id {
		t.Fatal("SelectSession did not take effect")
	}

	s.DeleteSession(id)
	if s.Selected() != "" {
		t.Error("Deleting the selected session should clear the selection")
	}
	if s.GetSession(id) != nil {
		t.Error("Deleted session still retrievable")
	}
}

func TestStore_DeletePreservesOtherSelection(t *testing.T) {
	s := New()
	keep := s.CreateSession()
	drop := s.CreateSession()
	s.SelectSession(keep)
	s.DeleteSession(drop)
	if s.Selected() != keep {
		t.Error("Deleting another session must not clear the selection")
	}
}

func TestStore_SelectUnknownNoOp(t *testing.T) {
	s := New()
	id := s.CreateSession()
	s.SelectSession(id)
	s.SelectSession("missing")
	if s.Selected() != id {
		t.Error("Selecting an unknown id should not change the selection")
	}
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	s := New()
	id := s.CreateSession()
	mid := s.AppendMessage(id, model.RoleUser, "original")

	snap := s.GetSession(id)
	snap.MessageByID(mid).Content = "mutated"

	if got := s.GetSession(id).MessageByID(mid).Content; got != "original" {
		t.Error("Mutating a snapshot must not affect the store")
	}
}

func TestStore_Restore(t *testing.T) {
	s := New()
	sess := model.NewSession()
	sess.Title = "restored"
	sess.Messages = append(sess.Messages, model.NewMessage(model.RoleUser, "hi"))

	s.Restore(sess)
	got := s.GetSession(sess.ID)
	if got == nil || got.Title != "restored" || got.MessageCount() != 1 {
		t.Fatalf("Restore lost data: %+v", got)
	}

	// Restoring the same id twice is a no-op.
	s.Restore(sess)
	if s.Len() != 1 {
		t.Errorf("Len = %d after duplicate restore, want 1", s.Len())
	}
}
