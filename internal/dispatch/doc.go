// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch arbitrates between the two response strategies for one
// user turn.
//
// The quick strategy is one stateless request: cheap, no history, and
// allowed to decline. The full strategy streams a history- and
// retrieval-aware answer through the frame decoder and the throttled
// scheduler. Escalation from quick to full within a turn is a normal,
// silent transition, never an error.
package dispatch
