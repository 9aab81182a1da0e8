// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the workbench assistant service.
//
// Two endpoints matter to the engine: the quick endpoint (one non-streaming
// request, no history) and the chat endpoint (streaming, history- and
// retrieval-aware). Every request carries a bearer credential; a rejected
// credential triggers exactly one renewal system-wide, with concurrent
// failures waiting on that single renewal and retrying once.
package api
