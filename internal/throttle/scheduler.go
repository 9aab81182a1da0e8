// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum time between applied mutations per key,
// roughly display-refresh granularity (30fps).
const DefaultInterval = 33 * time.Millisecond

// Apply is the target mutation wrapped by the scheduler. It runs with the
// scheduler's lock held and must not call back into the scheduler.
type Apply func(key, value string)

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler coalesces per-key updates to a minimum interval without losing
// the final value. Each key holds at most one buffered value and one armed
// timer; both are discarded by Flush or Forget, bounding their lifetime to
// a single streaming turn.
//
// Invariant: once Flush(key, v) returns, the last value applied for key is
// v, and no buffered value is applied until a new Update arrives. Applies
// run under the scheduler lock so a timer racing a Flush can never reorder
// past it.
type Scheduler struct {
	mu       sync.Mutex
	interval time.Duration
	apply    Apply
	keys     map[string]*keyState
}

// keyState is the two-state machine per key: idle, or pending with an armed
// timer holding the latest buffered value.
type keyState struct {
	limiter *rate.Limiter
	pending string
	armed   bool
	timer   *time.Timer
}

// NewScheduler wraps apply with a minimum inter-invocation interval per key.
// An interval <= 0 falls back to DefaultInterval.
func NewScheduler(interval time.Duration, apply Apply) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		interval: interval,
		apply:    apply,
		keys:     make(map[string]*keyState),
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Update applies value for key immediately when the interval has elapsed
// since the last applied mutation; otherwise it buffers the value and, if no
// timer is armed yet, arms one for the remaining interval. Only the latest
// buffered value is ever applied.
func (s *Scheduler) Update(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(key)
	if st.armed {
		st.pending = value
		return
	}

	res := st.limiter.Reserve()
	if delay := res.Delay(); delay > 0 {
		st.pending = value
		st.armed = true
		st.timer = time.AfterFunc(delay, func() { s.fire(key) })
		return
	}

	s.apply(key, value)
}

// Flush cancels any pending timer for key and applies value immediately and
// unconditionally. After Flush returns, no buffered value for key will be
// applied until a new Update arrives.
func (s *Scheduler) Flush(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.keys[key]; ok {
		s.disarm(st)
		// Consume a slot so a burst of updates right after the flush keeps
		// getting throttled.
		st.limiter.Allow()
	}
	s.apply(key, value)
}

// Forget drops all scheduler state for key, cancelling any pending timer
// without applying the buffered value. Called when a turn settles.
func (s *Scheduler) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.keys[key]; ok {
		s.disarm(st)
		delete(s.keys, key)
	}
}

// Pending reports whether key has a buffered value waiting on its timer.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.keys[key]
	return ok && st.armed
}

// Interval returns the configured minimum interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// =============================================================================
// INTERNALS
// =============================================================================

// fire runs when a key's timer expires and applies the latest buffered
// value. A concurrent Flush or Forget may have disarmed the key already, in
// which case nothing is applied.
func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.keys[key]
	if !ok || !st.armed {
		return
	}
	value := st.pending
	st.armed = false
	st.timer = nil
	st.pending = ""

	s.apply(key, value)
}

// state returns the keyState for key, creating it on first use.
// Caller must hold s.mu.
func (s *Scheduler) state(key string) *keyState {
	st, ok := s.keys[key]
	if !ok {
		st = &keyState{limiter: rate.NewLimiter(rate.Every(s.interval), 1)}
		s.keys[key] = st
	}
	return st
}

// disarm stops a key's timer if armed. Caller must hold s.mu.
func (s *Scheduler) disarm(st *keyState) {
	if st.armed {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.armed = false
		st.pending = ""
	}
}
