// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"strings"

	"github.com/arlenmoor/quill/internal/model"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// Kind identifies which field of a wire record was set.
type Kind int

const (
	// KindContent carries a text fragment to append.
	KindContent Kind = iota
	// KindError carries a terminal upstream error message.
	KindError
	// KindSources carries the provenance list for the answer.
	KindSources
	// KindDone marks the end of the stream.
	KindDone
)

// Event is one decoded unit from the wire. Exactly one field is meaningful,
// selected by Kind. Events are transient and never persisted.
type Event struct {
	Kind    Kind
	Content string
	Message string // error text when Kind == KindError
	Sources []model.SourceRef
}

// =============================================================================
// WIRE RECORD
// =============================================================================

// recordPrefix marks a payload-carrying line.
const recordPrefix = "data:"

// wireRecord mirrors one line's JSON payload. Pointer fields distinguish
// "absent" from zero values so field exclusivity can be checked.
type wireRecord struct {
	Content *string           `json:"content"`
	Error   *string           `json:"error"`
	Sources []model.SourceRef `json:"sources"`
	Done    *bool             `json:"done"`
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns arbitrarily-fragmented text chunks into a finite event
// sequence. It is stateful only with respect to the trailing partial line
// and is scoped to a single turn; it is not restartable.
type Decoder struct {
	residual strings.Builder
	done     bool
	skipped  int
}

// NewDecoder creates a decoder for one response stream.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns every event completed by it, in wire
// order. After a done event has been observed all further input is
// discarded.
func (d *Decoder) Feed(chunk string) []Event {
	if d.done || chunk == "" {
		return nil
	}

	d.residual.WriteString(chunk)
	buf := d.residual.String()

	idx := strings.LastIndexByte(buf, '\n')
	if idx < 0 {
		return nil
	}

	complete := buf[:idx]
	d.residual.Reset()
	d.residual.WriteString(buf[idx+1:])

	var events []Event
	for _, line := range strings.Split(complete, "\n") {
		ev, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Kind == KindDone || ev.Kind == KindError {
			d.done = true
			break
		}
	}
	return events
}

// Close flushes the trailing fragment. A final record is valid without its
// line terminator; anything else in the residual is dropped. A stream that
// ends without a done event is not an error.
func (d *Decoder) Close() []Event {
	if d.done {
		return nil
	}
	d.done = true

	line := d.residual.String()
	d.residual.Reset()
	if line == "" {
		return nil
	}
	if ev, ok := d.decodeLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Done reports whether the decoder has stopped consuming input.
func (d *Decoder) Done() bool {
	return d.done
}

// Skipped returns how many prefixed records carried unparseable payloads.
// Unprefixed lines (keep-alives) are not counted.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// decodeLine parses one complete line into an event.
func (d *Decoder) decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return Event{}, false
	}

	// Protocol-insignificant line (keep-alive, comment, SSE field we do not
	// use). Ignored without counting.
	if !strings.HasPrefix(line, recordPrefix) {
		return Event{}, false
	}

	payload := strings.TrimSpace(line[len(recordPrefix):])
	if payload == "" {
		return Event{}, false
	}

	var rec wireRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		d.skipped++
		return Event{}, false
	}

	switch {
	case rec.Error != nil:
		return Event{Kind: KindError, Message: *rec.Error}, true
	case rec.Content != nil:
		return Event{Kind: KindContent, Content: *rec.Content}, true
	case rec.Sources != nil:
		return Event{Kind: KindSources, Sources: rec.Sources}, true
	case rec.Done != nil && *rec.Done:
		return Event{Kind: KindDone}, true
	default:
		// Parseable JSON that matches no expected field.
		d.skipped++
		return Event{}, false
	}
}
