// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/domain"
)

const testConfig = `
host = "127.0.0.1"
port = 9090
logLevel = "DEBUG"
scopeRoots = ["/data/torrents"]

[[backends]]
name = "qbit-main"
type = "qbittorrent"
enabled = true
url = "http://localhost:8080"
username = "admin"
password = "secret"
pathIn = "/downloads"
pathOut = "/data/torrents"

[[backends]]
name = "deluge-main"
type = "deluge"
enabled = false
url = "http://localhost:8112"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLoadsTOML(t *testing.T) {
	app, err := New(writeConfig(t, testConfig), "test")
	require.NoError(t, err)

	cfg := app.Config
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, []string{"/data/torrents"}, cfg.ScopeRoots)

	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, domain.BackendTypeQbit, cfg.Backends[0].Type)
	assert.Equal(t, "/downloads", cfg.Backends[0].PathIn)
	assert.False(t, cfg.Backends[1].Enabled)

	require.Len(t, cfg.EnabledBackends(), 1)
}

func TestNewAppliesDefaults(t *testing.T) {
	app, err := New(writeConfig(t, testConfig), "test")
	require.NoError(t, err)

	assert.Equal(t, 30, app.Config.StallGraceMinutes)
	assert.Equal(t, 60, app.Config.SessionRetentionMinutes)
	assert.Equal(t, 50, app.Config.HistoryRetention)
	assert.True(t, app.Config.MetricsEnabled)
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv("ORPHANAGE__PORT", "1234")

	app, err := New(writeConfig(t, testConfig), "test")
	require.NoError(t, err)
	assert.Equal(t, 1234, app.Config.Port)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := `
port = 9090
scopeRoots = ["relative/path"]

[[backends]]
name = "qbit-main"
type = "qbittorrent"
enabled = true
url = "http://localhost:8080"
`
	_, err := New(writeConfig(t, bad), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestNewMissingFileFails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.toml"), "test")
	require.Error(t, err)
}
