// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package throttle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures applied mutations for assertions.
type recorder struct {
	mu      sync.Mutex
	applied []string
}

func (r *recorder) apply(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, key+"="+value)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.applied))
	copy(out, r.applied)
	return out
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.applied) == 0 {
		return ""
	}
	return r.applied[len(r.applied)-1]
}

func TestScheduler_FirstUpdateImmediate(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(50*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	assert.Equal(t, []string{"m1=a"}, rec.values())
}

func TestScheduler_CoalescesBurst(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(40*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	s.Update("m1", "ab")
	s.Update("m1", "abc")
	s.Update("m1", "abcd")

	// Only the first applied so far; the rest buffered behind one timer.
	assert.Equal(t, []string{"m1=a"}, rec.values())
	assert.True(t, s.Pending("m1"))

	// After the interval the timer applies the latest buffered value only.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{"m1=a", "m1=abcd"}, rec.values())
	assert.False(t, s.Pending("m1"))
}

func TestScheduler_FlushWinsOverPending(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(60*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	s.Update("m1", "intermediate")
	require.True(t, s.Pending("m1"))

	s.Flush("m1", "final")
	assert.Equal(t, "m1=final", rec.last())

	// The cancelled timer must never fire with the intermediate value.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, "m1=final", rec.last())
	for _, v := range rec.values() {
		assert.NotEqual(t, "m1=intermediate", v)
	}
}

func TestScheduler_FlushWithoutUpdates(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(50*time.Millisecond, rec.apply)

	s.Flush("m1", "only")
	assert.Equal(t, []string{"m1=only"}, rec.values())
}

func TestScheduler_FlushUnconditional(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(500*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	// Flush applies even though the interval has not elapsed.
	s.Flush("m1", "done")
	assert.Equal(t, []string{"m1=a", "m1=done"}, rec.values())
}

func TestScheduler_KeysIndependent(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(80*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	// A different key gets its own limiter and applies immediately.
	s.Update("m2", "b")
	assert.ElementsMatch(t, []string{"m1=a", "m2=b"}, rec.values())
}

func TestScheduler_ForgetDropsPending(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(50*time.Millisecond, rec.apply)

	s.Update("m1", "a")
	s.Update("m1", "stale")
	require.True(t, s.Pending("m1"))

	s.Forget("m1")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"m1=a"}, rec.values())
}

func TestScheduler_StreamThenFlushSequence(t *testing.T) {
	// Simulates one streaming turn: rapid updates ending in a flush with the
	// complete buffer. The final applied value must equal the flush argument.
	rec := &recorder{}
	s := NewScheduler(20*time.Millisecond, rec.apply)

	content := ""
	for _, tok := range []string{"Hel", "lo", ", ", "wor", "ld", "!"} {
		content += tok
		s.Update("m1", content)
	}
	s.Flush("m1", content)
	s.Forget("m1")

	assert.Equal(t, "m1=Hello, world!", rec.last())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, "m1=Hello, world!", rec.last())
}

func TestScheduler_DefaultInterval(t *testing.T) {
	s := NewScheduler(0, func(string, string) {})
	assert.Equal(t, DefaultInterval, s.Interval())
}
