// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/arlenmoor/quill/internal/api"
	"github.com/arlenmoor/quill/internal/model"
	"github.com/arlenmoor/quill/internal/stream"
	"github.com/arlenmoor/quill/internal/throttle"
	"github.com/arlenmoor/quill/internal/util"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// FastOutcome is the result of a quick-strategy attempt. Answered and
// escalation are mutually exclusive: either the content is final or the
// full strategy must run. A quick endpoint that is unreachable escalates;
// it never fails the turn.
type FastOutcome struct {
	Answered bool
	Content  string
	Tokens   int
}

// FullResult is the result of a full-strategy run. Content holds whatever
// was streamed, including partial content when the run failed.
type FullResult struct {
	Content string
	Sources []model.SourceRef
	Skipped int
}

// FullParams carries one full-strategy invocation.
type FullParams struct {
	Message string
	History []api.HistoryMessage

	// Key identifies the target message for the throttled scheduler.
	Key string

	UseKnowledge     bool
	KnowledgeSources []string
	MaxResults       int
}

// UpstreamError is an explicit error record received on the stream. It
// terminates the turn; content streamed before it is preserved.
type UpstreamError struct {
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs the two strategies against the assistant service.
type Dispatcher struct {
	client *api.Client
}

// New creates a dispatcher backed by the given client.
func New(client *api.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// =============================================================================
// QUICK STRATEGY
// =============================================================================

// Fast attempts the quick strategy: one non-streaming request carrying only
// the message text and optional ambient context. Returns an answered
// outcome with the provenance-annotated content, or an escalation.
func (d *Dispatcher) Fast(ctx context.Context, message string, cctx *api.ClientContext) FastOutcome {
	resp, err := d.client.QuickAnswer(ctx, &api.QuickRequest{
		Message:     message,
		Mode:        "auto",
		SkipSummary: true,
		Context:     cctx,
	})
	if err != nil {
		log.Printf("DISPATCH: quick endpoint unavailable, escalating: %v", err)
		return FastOutcome{}
	}
	if resp.FallbackNeeded || resp.Content == "" {
		return FastOutcome{}
	}

	return FastOutcome{
		Answered: true,
		Content:  resp.Content + FastProvenance(resp.TokensEstimated),
		Tokens:   resp.TokensEstimated,
	}
}

// FastProvenance is the machine-readable annotation appended to answers the
// quick strategy produced: the strategy name and an approximate cost unit.
func FastProvenance(tokens int) string {
	return "\n\n[quick · ~" + util.IntToString(tokens) + " tok]"
}

// =============================================================================
// FULL STRATEGY
// =============================================================================

// Full runs the streaming strategy. Content fragments are concatenated into
// a running buffer and forwarded to sched under p.Key; a sources record
// replaces the result's provenance list; done flushes the complete buffer
// exactly once and ends the turn. An explicit error record aborts the run
// with an UpstreamError, returning the partial content unflushed so the
// caller can settle the placeholder with an error marker.
func (d *Dispatcher) Full(ctx context.Context, p FullParams, sched *throttle.Scheduler) (*FullResult, error) {
	body, err := d.client.ChatStream(ctx, &api.ChatRequest{
		Message:          p.Message,
		History:          p.History,
		UseKnowledge:     p.UseKnowledge,
		KnowledgeSources: p.KnowledgeSources,
		MaxResults:       p.MaxResults,
	})
	if err != nil {
		return &FullResult{}, err
	}
	defer body.Close()

	var (
		buf      strings.Builder
		result   = &FullResult{}
		upstream *UpstreamError
	)

	dec := stream.NewDecoder()
	err = dec.Drain(ctx, body, func(ev stream.Event) {
		switch ev.Kind {
		case stream.KindContent:
			buf.WriteString(ev.Content)
			sched.Update(p.Key, buf.String())
		case stream.KindSources:
			result.Sources = ev.Sources
		case stream.KindError:
			upstream = &UpstreamError{Message: ev.Message}
		case stream.KindDone:
			// Normal end; flushed below.
		}
	})

	result.Content = buf.String()
	result.Skipped = dec.Skipped()

	if err != nil {
		return result, err
	}
	if upstream != nil {
		return result, upstream
	}

	sched.Flush(p.Key, result.Content)
	return result, nil
}
