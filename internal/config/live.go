// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "sync/atomic"

// Live holds the active configuration behind an atomic pointer so a reload
// can replace it while a turn is reading it. Readers take a snapshot with
// Get and never see a half-applied config.
type Live struct {
	p atomic.Pointer[Config]
}

// NewLive wraps cfg as the initial active configuration.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.p.Store(cfg)
	return l
}

// Get returns the current configuration. The returned value must be treated
// as read-only; mutate a copy and publish it with Set.
func (l *Live) Get() *Config {
	return l.p.Load()
}

// Set replaces the active configuration.
func (l *Live) Set(cfg *Config) {
	l.p.Store(cfg)
}
