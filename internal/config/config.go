// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/logger"
)

const envPrefix = "ORPHANAGE"

// AppConfig wraps the loaded configuration and its viper instance so the
// config file can be watched for live changes.
type AppConfig struct {
	Config *domain.Config

	v  *viper.Viper
	mu sync.Mutex
}

// New loads configuration from the given file (or config.toml next to the
// working directory when empty), applies ORPHANAGE__ env overrides, and
// validates it. Validation failure is fatal by design.
func New(configPath, version string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "orphanage"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No file is fine; env vars may carry everything.
		}
	}

	cfg := &domain.Config{Version: version}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &AppConfig{Config: cfg, v: v}, nil
}

// Watch reloads dynamic settings (currently the log level) when the config
// file changes on disk. Structural settings require a restart.
func (a *AppConfig) Watch() {
	if a.v.ConfigFileUsed() == "" {
		return
	}
	a.v.OnConfigChange(func(e fsnotify.Event) {
		a.mu.Lock()
		defer a.mu.Unlock()

		next := &domain.Config{}
		if err := a.v.Unmarshal(next); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("config reload failed")
			return
		}
		if next.LogLevel != a.Config.LogLevel {
			a.Config.LogLevel = next.LogLevel
			logger.SetLevel(next.LogLevel)
			log.Info().Str("logLevel", next.LogLevel).Msg("log level updated from config file")
		}
	})
	a.v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 7575)
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("logMaxSize", 50)
	v.SetDefault("logMaxBackups", 3)
	v.SetDefault("dataDir", ".")
	v.SetDefault("stallGraceMinutes", 30)
	v.SetDefault("sessionRetentionMinutes", 60)
	v.SetDefault("historyRetention", 50)
	v.SetDefault("metricsEnabled", true)
}
