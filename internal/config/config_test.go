// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, 33, cfg.Chat.ThrottleMs)
	assert.True(t, cfg.Chat.FastMode)
}

func TestLoadFrom(t *testing.T) {
	path := writeConfig(t, `
version = "1.0.0"

[server]
url = "https://assistant.example.com"
token_path = "/tmp/token"
timeout_secs = 30

[chat]
fast_mode = false
history_limit = 10
throttle_ms = 50

[knowledge]
enabled = true
sources = ["note", "task"]
max_results = 3
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "https://assistant.example.com", cfg.Server.URL)
	assert.Equal(t, "/tmp/token", cfg.Server.TokenPath)
	assert.Equal(t, 30, cfg.Server.TimeoutSecs)
	assert.False(t, cfg.Chat.FastMode)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.Equal(t, []string{"note", "task"}, cfg.Knowledge.Sources)
	assert.Equal(t, 3, cfg.Knowledge.MaxResults)
}

func TestLoadFromFillsDefaults(t *testing.T) {
	// A minimal file; everything unspecified comes from Default().
	path := writeConfig(t, `
[server]
url = "http://localhost:8080"
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, "dark", cfg.UI.Theme)
	assert.True(t, cfg.Storage.Enabled)
}

func TestLoadFromClampsOutOfRange(t *testing.T) {
	path := writeConfig(t, `
[chat]
history_limit = 100000
throttle_ms = 1

[server]
timeout_secs = 2
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, MaxHistoryLimit, cfg.Chat.HistoryLimit)
	assert.Equal(t, MinThrottleMs, cfg.Chat.ThrottleMs)
	assert.Equal(t, MinTimeoutSecs, cfg.Server.TimeoutSecs)
}

func TestLoadFromRejectsBadURL(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "not a url"
`)

	_, err := LoadFrom(path)
	require.Error(t, err)

	var errs ValidateErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "server.url", errs[0].Field)
}

func TestLoadFromRejectsTokenConflict(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "http://localhost:8080"
token = "abc"
token_path = "/tmp/token"
`)

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("QUILL_SERVER_URL", "https://override.example.com")
	t.Setenv("QUILL_FAST", "0")
	t.Setenv("QUILL_KNOWLEDGE", "true")
	t.Setenv("QUILL_HISTORY_LIMIT", "7")

	cfg := Default()
	cfg.Knowledge.Enabled = false
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "https://override.example.com", cfg.Server.URL)
	assert.False(t, cfg.Chat.FastMode)
	assert.True(t, cfg.Knowledge.Enabled)
	assert.Equal(t, 7, cfg.Chat.HistoryLimit)
}

func TestLoadFromFixesPermissions(t *testing.T) {
	path := writeConfig(t, `
[server]
url = "http://localhost:8080"
`)
	require.NoError(t, os.Chmod(path, 0644))

	_, err := LoadFrom(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStoragePathExplicit(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = "/tmp/custom.db"
	path, err := cfg.StoragePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", path)
}
