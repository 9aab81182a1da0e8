// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions and messages.
//
// A Session owns an ordered list of Messages. Messages are never reordered;
// the session title is derived once from the first user message and never
// overwritten afterwards.
package model
