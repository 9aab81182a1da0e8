// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for quill.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation. The file lives at ~/.quill/config.toml and can
// be watched for live reload.
package config
