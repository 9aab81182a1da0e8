// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Configuration constants for the assistant service client.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	quickPath = "/api/assistant/quick"
	chatPath  = "/api/assistant/chat"
)

// Shared pooled HTTP clients: one with a timeout for request/response
// calls, one without for streaming bodies (lifetime controlled via context).
var (
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
		Timeout: DefaultTimeout,
	}

	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates no server URL was set.
	ErrNotConfigured = errors.New("assistant server not configured")

	// ErrAuthFailed indicates authentication failed and renewal did not help.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")
)

// Error represents a non-success response from the assistant service.
type Error struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistant service error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("assistant service error (status %d)", e.Status)
}

// Is maps rate-limit responses onto the ErrRateLimited sentinel.
func (e *Error) Is(target error) bool {
	return target == ErrRateLimited && e.Status == http.StatusTooManyRequests
}

// =============================================================================
// TOKEN SOURCE
// =============================================================================

// TokenSource produces a fresh bearer credential when the current one is
// rejected. Renewal may block (read a refreshed token file, call a refresh
// endpoint); the client guarantees only one renewal runs at a time.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields the same credential.
// Renewal with a static token cannot succeed a second time, so a rejected
// static token fails terminally.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNotConfigured
		}
		return token, nil
	}
}

// FileToken returns a TokenSource that re-reads the credential file on each
// renewal, so externally rotated tokens pick up without a restart.
func FileToken(path string) TokenSource {
	return func(context.Context) (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", ErrNotConfigured
		}
		return token, nil
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the assistant service.
type Client struct {
	baseURL string

	httpClient   *http.Client
	streamClient *http.Client

	mu     sync.RWMutex
	token  string
	source TokenSource

	// Single-flight renewal: all requests failing while a renewal is in
	// progress share its outcome.
	renewals singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the initial bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTokenSource sets the renewal source for rejected credentials.
func WithTokenSource(src TokenSource) Option {
	return func(c *Client) { c.source = src }
}

// WithHTTPClients overrides the shared pooled clients (tests).
func WithHTTPClients(plain, streaming *http.Client) Option {
	return func(c *Client) {
		c.httpClient = plain
		c.streamClient = streaming
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.source == nil {
		c.source = StaticToken(c.token)
	}
	return c
}

// IsConfigured reports whether a server URL is set.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// =============================================================================
// QUICK ENDPOINT
// =============================================================================

// QuickAnswer performs the stateless, non-streaming request. History is
// never sent; the service answers from the message alone or signals that a
// fallback to the chat endpoint is needed.
func (c *Client) QuickAnswer(ctx context.Context, req *QuickRequest) (*QuickResponse, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	resp, err := c.doJSON(ctx, c.httpClient, quickPath, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out QuickResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode quick response: %w", err)
	}
	return &out, nil
}

// =============================================================================
// CHAT ENDPOINT
// =============================================================================

// ChatStream performs the streaming request and returns the raw response
// body for the frame decoder. The caller owns the body and must close it;
// abandoning it (closing early) implicitly abandons the turn.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (io.ReadCloser, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	resp, err := c.doJSON(ctx, c.streamClient, chatPath, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// =============================================================================
// AUTHENTICATED TRANSPORT
// =============================================================================

// doJSON posts a JSON body with the bearer credential. On a single
// authorization failure it renews the credential (one renewal in flight
// system-wide, concurrent callers queue on it) and retries exactly once.
func (c *Client) doJSON(ctx context.Context, hc *http.Client, path string, payload any, accept string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.send(ctx, hc, path, bodyBytes, accept, c.currentToken())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.checked(resp)
	}
	resp.Body.Close()

	token, err := c.renewToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	resp, err = c.send(ctx, hc, path, bodyBytes, accept, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrAuthFailed
	}
	return c.checked(resp)
}

// send issues one POST with the given credential.
func (c *Client) send(ctx context.Context, hc *http.Client, path string, body []byte, accept, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if accept == "text/event-stream" {
		req.Header.Set("Cache-Control", "no-cache")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// checked converts a non-2xx response into a typed error.
func (c *Client) checked(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	apiErr := &Error{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return nil, apiErr
}

// renewToken runs the token source through the single-flight group. Every
// caller that queues while a renewal is in progress receives that renewal's
// result; a failed renewal rejects them all.
func (c *Client) renewToken(ctx context.Context) (string, error) {
	v, err, _ := c.renewals.Do("token", func() (any, error) {
		token, err := c.source(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
