// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive quill terminal session.
//
// The REPL reads input with readline-style history, submits turns to the
// engine, streams partial answers to the terminal, and exposes session
// management through slash commands.
package cli
