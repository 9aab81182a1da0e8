// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/arlenmoor/quill/internal/api"
	"github.com/arlenmoor/quill/internal/dispatch"
	"github.com/arlenmoor/quill/internal/model"
	"github.com/arlenmoor/quill/internal/storage"
	"github.com/arlenmoor/quill/internal/store"
	"github.com/arlenmoor/quill/internal/throttle"
)

// =============================================================================
// ERRORS & CONSTANTS
// =============================================================================

var (
	// ErrEmptyInput is returned when the submitted text is blank.
	ErrEmptyInput = errors.New("empty input")
	// ErrTurnInFlight is returned when the session already has a running turn.
	ErrTurnInFlight = errors.New("turn already in flight")
	// ErrSessionNotFound is returned for an unknown, non-empty session id.
	ErrSessionNotFound = errors.New("session not found")
)

// DefaultHistoryLimit caps how many prior messages accompany a full request.
const DefaultHistoryLimit = 50

// keySep joins session and message ids into one scheduler key. U+001F never
// appears in a UUID.
const keySep = "\x1f"

// =============================================================================
// PHASES
// =============================================================================

// Phase is a coarse turn lifecycle stage, reported through OnPhase.
type Phase int

const (
	// PhaseAccepted means the input passed validation and the messages
	// were appended.
	PhaseAccepted Phase = iota
	// PhaseQuick means the quick strategy is being attempted.
	PhaseQuick
	// PhaseStreaming means the full strategy is receiving content.
	PhaseStreaming
	// PhaseSettled means the placeholder holds its final content.
	PhaseSettled
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseAccepted:
		return "accepted"
	case PhaseQuick:
		return "quick"
	case PhaseStreaming:
		return "streaming"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// =============================================================================
// RESULT & OPTIONS
// =============================================================================

// Options configures one turn.
type Options struct {
	// FastMode attempts the quick strategy first.
	FastMode bool

	UseKnowledge     bool
	KnowledgeSources []string
	MaxResults       int

	// HistoryLimit caps the prior messages sent with a full request.
	// Zero means DefaultHistoryLimit.
	HistoryLimit int

	// Context is optional ambient context for quick requests.
	Context *api.ClientContext
}

// TurnResult describes a settled turn. Err is set when the answer ended in
// an error marker; the placeholder still holds final content either way.
type TurnResult struct {
	SessionID string
	MessageID string
	Content   string
	Fast      bool
	Sources   []model.SourceRef
	Skipped   int
	Elapsed   time.Duration
	Err       error
}

// Persister saves settled sessions. Nil disables persistence.
type Persister interface {
	SaveSession(*model.Session) error
	DeleteSession(id string) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine drives turns against a session store and a dispatcher.
//
// OnUpdate and OnPhase, when set, must be assigned before the first Submit
// and must not call back into the engine. OnUpdate fires on every throttled
// content write including the final one.
type Engine struct {
	store   *store.Store
	disp    *dispatch.Dispatcher
	sched   *throttle.Scheduler
	persist Persister

	OnUpdate func(sessionID, messageID, content string)
	OnPhase  func(sessionID string, phase Phase)

	mu       sync.Mutex
	inflight map[string]bool
	sources  map[string][]model.SourceRef
}

// New creates an engine. interval is the minimum delay between content
// writes per message; persist may be nil.
func New(st *store.Store, disp *dispatch.Dispatcher, interval time.Duration, persist Persister) *Engine {
	e := &Engine{
		store:    st,
		disp:     disp,
		persist:  persist,
		inflight: make(map[string]bool),
		sources:  make(map[string][]model.SourceRef),
	}
	e.sched = throttle.NewScheduler(interval, e.applyContent)
	return e
}

// Store exposes the underlying session store for read paths.
func (e *Engine) Store() *store.Store {
	return e.store
}

// applyContent is the scheduler sink: every throttled write lands in the
// store and is surfaced to the UI hook.
func (e *Engine) applyContent(key, value string) {
	sessionID, messageID, ok := splitKey(key)
	if !ok {
		return
	}
	e.store.SetMessageContent(sessionID, messageID, value)
	if e.OnUpdate != nil {
		e.OnUpdate(sessionID, messageID, value)
	}
}

// =============================================================================
// TURN SUBMISSION
// =============================================================================

// Submit runs one turn. An empty sessionID creates and selects a new
// session. The returned error covers rejection only (empty input, unknown
// session, turn in flight); a turn that fails mid-stream settles the
// placeholder with an error marker and reports through TurnResult.Err.
func (e *Engine) Submit(ctx context.Context, sessionID, input string, opts Options) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	if sessionID == "" {
		sessionID = e.store.CreateSession()
		e.store.SelectSession(sessionID)
	} else if e.store.GetSession(sessionID) == nil {
		return nil, ErrSessionNotFound
	}

	if err := e.acquire(sessionID); err != nil {
		return nil, err
	}

	started := time.Now()

	// Auxiliary provenance is per-answer state; a new turn invalidates it.
	e.rememberSources(sessionID, nil)

	// History is snapshotted before this turn's messages exist, so the
	// request history never contains the current message or placeholder.
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	history := e.historyFor(sessionID, limit)

	e.store.AppendMessage(sessionID, model.RoleUser, input)
	placeholderID := e.store.AppendMessage(sessionID, model.RoleAssistant, "")
	key := turnKey(sessionID, placeholderID)
	e.phase(sessionID, PhaseAccepted)

	defer e.settle(sessionID, key)

	result := &TurnResult{SessionID: sessionID, MessageID: placeholderID}

	if opts.FastMode {
		e.phase(sessionID, PhaseQuick)
		if out := e.disp.Fast(ctx, input, opts.Context); out.Answered {
			e.sched.Flush(key, out.Content)
			result.Content = out.Content
			result.Fast = true
			result.Elapsed = time.Since(started)
			return result, nil
		}
		log.Printf("ENGINE: quick strategy declined, escalating session=%s", sessionID)
	}

	e.phase(sessionID, PhaseStreaming)
	full, err := e.disp.Full(ctx, dispatch.FullParams{
		Message:          input,
		History:          history,
		Key:              key,
		UseKnowledge:     opts.UseKnowledge,
		KnowledgeSources: opts.KnowledgeSources,
		MaxResults:       opts.MaxResults,
	}, e.sched)

	result.Skipped = full.Skipped
	result.Elapsed = time.Since(started)
	if full.Skipped > 0 {
		log.Printf("ENGINE: %d unparseable stream records skipped session=%s", full.Skipped, sessionID)
	}

	if err != nil {
		marked := errorMarker(full.Content, errorText(err))
		e.sched.Flush(key, marked)
		result.Content = marked
		result.Err = err
		return result, nil
	}

	result.Content = full.Content
	result.Sources = full.Sources
	e.rememberSources(sessionID, full.Sources)
	return result, nil
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// NewSession creates, selects, and returns a fresh session id.
func (e *Engine) NewSession() string {
	id := e.store.CreateSession()
	e.store.SelectSession(id)
	return id
}

// DeleteSession removes a session from the store and from persistence. A
// session with a turn in flight cannot be deleted.
func (e *Engine) DeleteSession(id string) error {
	e.mu.Lock()
	if e.inflight[id] {
		e.mu.Unlock()
		return ErrTurnInFlight
	}
	delete(e.sources, id)
	e.mu.Unlock()

	e.store.DeleteSession(id)
	if e.persist != nil {
		// A session that never settled was never persisted. Its absence
		// from the archive is not a failure to delete it.
		if err := e.persist.DeleteSession(id); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

// InFlight reports whether the session has a running turn.
func (e *Engine) InFlight(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[sessionID]
}

// Sources returns the provenance list from the session's most recent full
// answer, or nil.
func (e *Engine) Sources(sessionID string) []model.SourceRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sources[sessionID]
}

// =============================================================================
// INTERNALS
// =============================================================================

func (e *Engine) acquire(sessionID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[sessionID] {
		return ErrTurnInFlight
	}
	e.inflight[sessionID] = true
	return nil
}

// settle releases the turn: in-flight flag cleared, throttle state dropped,
// session persisted. Runs exactly once per accepted turn.
func (e *Engine) settle(sessionID, key string) {
	e.sched.Forget(key)

	e.mu.Lock()
	delete(e.inflight, sessionID)
	e.mu.Unlock()

	e.phase(sessionID, PhaseSettled)

	if e.persist != nil {
		if sess := e.store.GetSession(sessionID); sess != nil {
			if err := e.persist.SaveSession(sess); err != nil {
				log.Printf("ENGINE: persist failed session=%s: %v", sessionID, err)
			}
		}
	}
}

func (e *Engine) historyFor(sessionID string, limit int) []api.HistoryMessage {
	sess := e.store.GetSession(sessionID)
	if sess == nil {
		return []api.HistoryMessage{}
	}
	msgs := sess.History(limit)
	history := make([]api.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, api.HistoryMessage{Role: m.Role.String(), Content: m.Content})
	}
	return history
}

func (e *Engine) rememberSources(sessionID string, src []model.SourceRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(src) == 0 {
		delete(e.sources, sessionID)
		return
	}
	e.sources[sessionID] = src
}

func (e *Engine) phase(sessionID string, p Phase) {
	if e.OnPhase != nil {
		e.OnPhase(sessionID, p)
	}
}

func turnKey(sessionID, messageID string) string {
	return sessionID + keySep + messageID
}

func splitKey(key string) (sessionID, messageID string, ok bool) {
	idx := strings.Index(key, keySep)
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+len(keySep):], true
}

// errorMarker settles a failed turn's content: any streamed partial is kept
// and the failure is appended as a visible marker line.
func errorMarker(partial, message string) string {
	if partial == "" {
		return "⚠ " + message
	}
	return partial + "\n\n⚠ " + message
}

// errorText extracts the user-facing text for a marker.
func errorText(err error) string {
	var upstream *dispatch.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	return err.Error()
}
