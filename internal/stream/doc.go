// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the assistant's framed response stream.
//
// The wire format is one record per line, prefixed with "data:" and carrying
// a JSON payload with exactly one of the fields content, error, sources or
// done. Network reads do not align with record boundaries, so the decoder
// keeps a single residual fragment between feeds and only parses complete
// lines. Lines without the record prefix (keep-alives, comments) are ignored
// silently; records whose payload fails to parse are skipped but counted.
package stream
