// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete quill configuration.
type Config struct {
	Version string `toml:"version"`

	// Server is the assistant service connection.
	Server ServerConfig `toml:"server"`

	// Chat controls turn behavior.
	Chat ChatConfig `toml:"chat"`

	// Knowledge controls retrieval-augmented answers.
	Knowledge KnowledgeConfig `toml:"knowledge"`

	// Storage controls local persistence.
	Storage StorageConfig `toml:"storage"`

	// UI controls terminal presentation.
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains the assistant service connection settings.
type ServerConfig struct {
	// URL is the assistant service base URL.
	URL string `toml:"url"`
	// Token is the bearer credential. Prefer TokenPath so the secret stays
	// out of the config file.
	Token string `toml:"token"`
	// TokenPath points at a file holding the credential; re-read on auth
	// failure so rotated tokens pick up without a restart.
	TokenPath string `toml:"token_path"`
	// TimeoutSecs bounds non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ChatConfig contains per-turn behavior settings.
type ChatConfig struct {
	// FastMode attempts the quick endpoint before streaming.
	FastMode bool `toml:"fast_mode"`
	// HistoryLimit caps how many prior messages accompany a request.
	HistoryLimit int `toml:"history_limit"`
	// ThrottleMs is the minimum interval between streamed content writes,
	// in milliseconds.
	ThrottleMs int `toml:"throttle_ms"`
}

// KnowledgeConfig contains retrieval settings.
type KnowledgeConfig struct {
	// Enabled requests knowledge-grounded answers.
	Enabled bool `toml:"enabled"`
	// Sources restricts retrieval to the named source kinds. Empty means
	// all kinds.
	Sources []string `toml:"sources"`
	// MaxResults caps retrieved passages per request.
	MaxResults int `toml:"max_results"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// Enabled persists sessions to the local database.
	Enabled bool `toml:"enabled"`
	// Path is the database file (empty = default ~/.quill/sessions.db).
	Path string `toml:"path"`
}

// UIConfig contains terminal presentation settings.
type UIConfig struct {
	// Theme is "dark" or "light".
	Theme string `toml:"theme"`
	// ShowSources prints the provenance list after answers.
	ShowSources bool `toml:"show_sources"`
	// ShowStats prints per-turn timing and token info.
	ShowStats bool `toml:"show_stats"`
	// Markdown renders final answers through the terminal markdown renderer.
	Markdown bool `toml:"markdown"`
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates all validation failures.
type ValidateErrors []ValidationError

// Error implements the error interface.
func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Clamp bounds for numeric settings.
const (
	MinTimeoutSecs = 5
	MaxTimeoutSecs = 300

	MinHistoryLimit = 1
	MaxHistoryLimit = 200

	MinThrottleMs = 10
	MaxThrottleMs = 1000

	MinMaxResults = 1
	MaxMaxResults = 20
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			URL:         "",
			TimeoutSecs: 60,
		},

		Chat: ChatConfig{
			FastMode:     true,
			HistoryLimit: 50,
			ThrottleMs:   33,
		},

		Knowledge: KnowledgeConfig{
			Enabled:    true,
			Sources:    nil,
			MaxResults: 5,
		},

		Storage: StorageConfig{
			Enabled: true,
			Path:    "",
		},

		UI: UIConfig{
			Theme:       "dark",
			ShowSources: true,
			ShowStats:   false,
			Markdown:    true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the quill configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".quill"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions tightens config file permissions to 0600 so the
// credential fields stay private.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.quill/config.toml, falling back to
// defaults when the file is absent. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from a specific TOML file with full
// validation.
func LoadFrom(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to ~/.quill/config.toml with private
// permissions.
func (c *Config) Save() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENV OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported variables:
//   - QUILL_SERVER_URL: overrides server.url
//   - QUILL_TOKEN: overrides server.token
//   - QUILL_TOKEN_PATH: overrides server.token_path
//   - QUILL_FAST: "1"/"true" enables fast mode, "0"/"false" disables it
//   - QUILL_KNOWLEDGE: "1"/"true" enables retrieval, "0"/"false" disables it
//   - QUILL_HISTORY_LIMIT: overrides chat.history_limit
//   - QUILL_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if serverURL := os.Getenv("QUILL_SERVER_URL"); serverURL != "" {
		c.Server.URL = serverURL
	}

	if token := os.Getenv("QUILL_TOKEN"); token != "" {
		c.Server.Token = token
	}

	if tokenPath := os.Getenv("QUILL_TOKEN_PATH"); tokenPath != "" {
		c.Server.TokenPath = tokenPath
	}

	if fast := os.Getenv("QUILL_FAST"); fast != "" {
		c.Chat.FastMode = envBool(fast)
	}

	if knowledge := os.Getenv("QUILL_KNOWLEDGE"); knowledge != "" {
		c.Knowledge.Enabled = envBool(knowledge)
	}

	if limit := os.Getenv("QUILL_HISTORY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			c.Chat.HistoryLimit = n
		}
	}

	if theme := os.Getenv("QUILL_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

func envBool(v string) bool {
	return v == "1" || strings.ToLower(v) == "true"
}

// =============================================================================
// DEFAULTS & VALIDATION
// =============================================================================

// SetDefaults clamps numeric settings into their valid ranges and fills
// zero values.
func (c *Config) SetDefaults() {
	c.Server.TimeoutSecs = clamp(c.Server.TimeoutSecs, MinTimeoutSecs, MaxTimeoutSecs, 60)
	c.Chat.HistoryLimit = clamp(c.Chat.HistoryLimit, MinHistoryLimit, MaxHistoryLimit, 50)
	c.Chat.ThrottleMs = clamp(c.Chat.ThrottleMs, MinThrottleMs, MaxThrottleMs, 33)
	c.Knowledge.MaxResults = clamp(c.Knowledge.MaxResults, MinMaxResults, MaxMaxResults, 5)

	if c.UI.Theme == "" {
		c.UI.Theme = "dark"
	}
}

// clamp bounds v into [min, max], substituting def when v is unset.
func clamp(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "server.url",
				Message: fmt.Sprintf("invalid URL '%s', must be http or https", c.Server.URL),
			})
		}
	}

	if c.Server.Token != "" && c.Server.TokenPath != "" {
		errs = append(errs, ValidationError{
			Field:   "server.token",
			Message: "token and token_path are mutually exclusive",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED PATHS
// =============================================================================

// StoragePath resolves the session database location.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.db"), nil
}

// HistoryPath resolves the REPL input-history file location.
func HistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}
