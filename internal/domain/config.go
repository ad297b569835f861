// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Backend type identifiers for the two supported client variants.
const (
	BackendTypeQbit   = "qbittorrent"
	BackendTypeDeluge = "deluge"
)

// ErrConfig marks fatal configuration errors. It is the only error class
// allowed to abort startup or session creation.
var ErrConfig = errors.New("invalid configuration")

// ConfigError describes a single invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// BackendConfig holds the connection settings for one torrent client.
// PathIn/PathOut translate client-reported paths into the path space this
// process sees (container vs host mounts).
type BackendConfig struct {
	Name     string `toml:"name" mapstructure:"name"`
	Type     string `toml:"type" mapstructure:"type"`
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	URL      string `toml:"url" mapstructure:"url"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	PathIn   string `toml:"pathIn" mapstructure:"pathIn"`
	PathOut  string `toml:"pathOut" mapstructure:"pathOut"`
}

// Config represents the application configuration.
type Config struct {
	Version string

	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// ScopeRoots bound orphan classification and deletion. Paths outside
	// every scope root are never classified and never deleted.
	ScopeRoots []string `toml:"scopeRoots" mapstructure:"scopeRoots"`

	// StallGraceMinutes is how long a torrent may report zero transfer
	// before it is classified as stalled.
	StallGraceMinutes int `toml:"stallGraceMinutes" mapstructure:"stallGraceMinutes"`

	// SessionRetentionMinutes is how long finished scan sessions stay
	// queryable before eviction.
	SessionRetentionMinutes int `toml:"sessionRetentionMinutes" mapstructure:"sessionRetentionMinutes"`

	// HistoryRetention is the number of completed scan summaries kept in
	// the history store. Zero keeps everything.
	HistoryRetention int `toml:"historyRetention" mapstructure:"historyRetention"`

	MetricsEnabled bool `toml:"metricsEnabled" mapstructure:"metricsEnabled"`

	Backends []BackendConfig `toml:"backends" mapstructure:"backends"`
}

// StallGrace returns the configured stall grace period.
func (c *Config) StallGrace() time.Duration {
	return time.Duration(c.StallGraceMinutes) * time.Minute
}

// SessionRetention returns how long finished sessions stay queryable.
func (c *Config) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionMinutes) * time.Minute
}

// EnabledBackends returns only the backends marked enabled.
func (c *Config) EnabledBackends() []BackendConfig {
	out := make([]BackendConfig, 0, len(c.Backends))
	for _, b := range c.Backends {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks the configuration once at startup. It fails fast with a
// ConfigError before any network call is made.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("must be 1-65535, got %d", c.Port)}
	}

	if len(c.EnabledBackends()) == 0 {
		return &ConfigError{Field: "backends", Reason: "at least one backend must be enabled"}
	}

	seen := make(map[string]struct{}, len(c.Backends))
	for i, b := range c.Backends {
		field := fmt.Sprintf("backends[%d]", i)
		name := strings.TrimSpace(b.Name)
		if name == "" {
			return &ConfigError{Field: field + ".name", Reason: "name is required"}
		}
		if _, dup := seen[name]; dup {
			return &ConfigError{Field: field + ".name", Reason: fmt.Sprintf("duplicate backend name %q", name)}
		}
		seen[name] = struct{}{}

		switch b.Type {
		case BackendTypeQbit, BackendTypeDeluge:
		default:
			return &ConfigError{Field: field + ".type", Reason: fmt.Sprintf("unsupported type %q", b.Type)}
		}

		if !b.Enabled {
			continue
		}
		if strings.TrimSpace(b.URL) == "" {
			return &ConfigError{Field: field + ".url", Reason: "url is required for enabled backends"}
		}
		if (b.PathIn == "") != (b.PathOut == "") {
			return &ConfigError{Field: field + ".pathIn", Reason: "pathIn and pathOut must be set together"}
		}
	}

	if len(c.ScopeRoots) == 0 {
		return &ConfigError{Field: "scopeRoots", Reason: "at least one scope root is required"}
	}
	for _, root := range c.ScopeRoots {
		if !filepath.IsAbs(root) {
			return &ConfigError{Field: "scopeRoots", Reason: fmt.Sprintf("scope root must be absolute: %s", root)}
		}
	}

	if c.StallGraceMinutes < 0 {
		return &ConfigError{Field: "stallGraceMinutes", Reason: "must not be negative"}
	}

	return nil
}
