// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package throttle rate-limits how often streamed content is applied to
// shared state.
//
// The decoder can emit far more events per second than the consuming state
// update should process; without coalescing, every token would trigger a
// full state propagation. The scheduler applies at most one mutation per
// key per interval, always keeping the latest buffered value, and a Flush
// guarantees the final value lands regardless of timing.
package throttle
