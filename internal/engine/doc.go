// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates a single user turn from input to settled
// assistant message.
//
// A turn appends the user message and an empty assistant placeholder, picks
// a response strategy, streams or receives the answer into the placeholder,
// and settles: exactly one final write per turn, the placeholder never left
// empty, throttle state released, and the session persisted. One turn per
// session runs at a time; a second submission while a turn is in flight is
// rejected rather than queued.
package engine
