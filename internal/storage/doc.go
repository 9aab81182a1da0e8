// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists sessions and messages across restarts.
//
// Sessions and messages are the only engine state that survives a restart;
// source provenance and in-flight turn state are never written. The store
// uses SQLite so that a session with many messages can be rewritten cheaply
// in a single transaction.
package storage
