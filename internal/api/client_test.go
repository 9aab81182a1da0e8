// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append(opts, WithHTTPClients(srv.Client(), srv.Client()))
	return NewClient(srv.URL, opts...)
}

func TestClient_QuickAnswer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assistant/quick", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req QuickRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2+2?", req.Message)
		assert.Equal(t, "auto", req.Mode)

		json.NewEncoder(w).Encode(QuickResponse{
			Content:         "4",
			FallbackNeeded:  false,
			TokensEstimated: 3,
			RuleMatched:     true,
		})
	})

	c := newTestClient(t, handler, WithToken("tok-1"))
	resp, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "2+2?", Mode: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Content)
	assert.False(t, resp.FallbackNeeded)
	assert.Equal(t, 3, resp.TokensEstimated)
}

func TestClient_QuickAnswer_NullToolUsed(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"content":"x","fallback_needed":false,"tokens_estimated":1,"rule_matched":false,"tool_used":null}`)
	})
	c := newTestClient(t, handler, WithToken("tok"))
	resp, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "", resp.ToolUsed)
}

func TestClient_ChatStream_Body(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/assistant/chat", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "question", req.Message)
		assert.Len(t, req.History, 2)

		io.WriteString(w, "data: {\"content\":\"hi\"}\ndata: {\"done\":true}\n")
	})

	c := newTestClient(t, handler, WithToken("tok"))
	body, err := c.ChatStream(context.Background(), &ChatRequest{
		Message: "question",
		History: []HistoryMessage{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}},
	})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"content\":\"hi\"")
}

func TestClient_RenewalOn401(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(QuickResponse{Content: "ok"})
	})

	var renewals atomic.Int32
	src := func(context.Context) (string, error) {
		renewals.Add(1)
		return "fresh", nil
	}

	c := newTestClient(t, handler, WithToken("stale"), WithTokenSource(src))
	resp, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(1), renewals.Load())
	assert.Equal(t, int32(2), calls.Load())

	// The renewed credential is retained for subsequent requests.
	_, err = c.QuickAnswer(context.Background(), &QuickRequest{Message: "y"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), renewals.Load())
}

func TestClient_RenewalFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	src := func(context.Context) (string, error) {
		return "", errors.New("refresh endpoint down")
	}

	c := newTestClient(t, handler, WithToken("stale"), WithTokenSource(src))
	_, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestClient_SecondRejectionTerminal(t *testing.T) {
	// Renewal "succeeds" but the service keeps rejecting: exactly one retry.
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := newTestClient(t, handler, WithToken("stale"), WithTokenSource(StaticToken("still-stale")))
	_, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ErrorResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"backend exploded"}`)
	})

	c := newTestClient(t, handler, WithToken("tok"))
	_, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "backend exploded", apiErr.Message)
}

func TestClient_RateLimitedSentinel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	c := newTestClient(t, handler, WithToken("tok"))
	_, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient("")
	_, err := c.QuickAnswer(context.Background(), &QuickRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.ChatStream(context.Background(), &ChatRequest{Message: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
