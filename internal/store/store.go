// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"sync"
	"time"

	"github.com/arlenmoor/quill/internal/model"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// Store holds all sessions for one client instance.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	order    []string // session ids in creation order
	selected string   // currently selected session id, "" for none
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
	}
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// CreateSession creates a new empty session and returns its id.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := model.NewSession()
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	return sess.ID
}

// Restore inserts an existing session, preserving its id and timestamps.
// Used when loading persisted sessions at startup; sessions must be restored
// in creation order.
func (s *Store) Restore(sess *model.Session) {
	if sess == nil || sess.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return
	}
	s.sessions[sess.ID] = sess.Clone()
	s.order = append(s.order, sess.ID)
}

// DeleteSession removes a session. Deleting the selected session clears the
// selection. Unknown ids are a no-op.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.selected == id {
		s.selected = ""
	}
}

// SelectSession sets the currently selected session. Passing "" clears the
// selection; an unknown id is a no-op.
func (s *Store) SelectSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		s.selected = ""
		return
	}
	if _, ok := s.sessions[id]; ok {
		s.selected = id
	}
}

// Selected returns the currently selected session id, or "".
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// =============================================================================
// MESSAGE MUTATION
// =============================================================================

// AppendMessage appends a message to a session and returns the new message
// id. The first user message in a session fixes the session title. Returns
// "" when the session does not exist.
func (s *Store) AppendMessage(sessionID string, role model.Role, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ""
	}

	msg := model.NewMessage(role, content)
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()

	if role == model.RoleUser && sess.Title == "" {
		sess.Title = model.DeriveTitle(content)
	}
	return msg.ID
}

// SetMessageContent replaces a message's content. Idempotent, last-write-wins.
// This is the sole mutation path used by streaming. Unknown session or
// message ids are a no-op.
func (s *Store) SetMessageContent(sessionID, messageID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	msg := sess.MessageByID(messageID)
	if msg == nil {
		return
	}
	msg.Content = content
	sess.UpdatedAt = time.Now()
}

// =============================================================================
// READ ACCESS
// =============================================================================

// ListSessions returns snapshots of all sessions, most recently created first.
func (s *Store) ListSessions() []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Session, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]].Clone())
	}
	return out
}

// GetSession returns a snapshot of the session, or nil when unknown.
func (s *Store) GetSession(id string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return sess.Clone()
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
