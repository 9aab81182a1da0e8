// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store owns the in-memory representation of sessions and messages.
//
// Store is the single mutation path for conversation state: the turn engine
// creates messages through it and streaming writes flow through
// SetMessageContent. Every operation completes synchronously under one lock,
// so the unit of mutation is always a full store operation. Mutations on
// unknown ids are deliberate no-ops; the engine never constructs an invalid
// id, so there is nothing useful to report.
package store
