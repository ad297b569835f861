// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thenunner/orphanage/internal/api"
	"github.com/thenunner/orphanage/internal/buildinfo"
	"github.com/thenunner/orphanage/internal/config"
	"github.com/thenunner/orphanage/internal/database"
	"github.com/thenunner/orphanage/internal/logger"
	"github.com/thenunner/orphanage/internal/metrics"
	"github.com/thenunner/orphanage/internal/models"
	"github.com/thenunner/orphanage/internal/session"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "orphanage",
		Short:         "Torrent and filesystem reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (TOML)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), buildinfo.String())
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	app, err := config.New(configPath, buildinfo.Version)
	if err != nil {
		return err
	}
	cfg := app.Config

	logger.Setup(cfg)
	app.Watch()

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Msg("starting orphanage")

	db, err := database.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := models.NewScanRunStore(db.Conn(), cfg.HistoryRetention)
	sessions := session.NewManager(cfg, nil, store)

	var metricsManager *metrics.Manager
	if cfg.MetricsEnabled {
		metricsManager = metrics.NewManager(sessions)
		sessions.SetScanDoneHook(func(sess *session.Session, _ *session.Outcome) {
			metricsManager.ScanFinished(sess.Progress().Phase)
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := api.NewServer(cfg, sessions, store, metricsManager)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info().Msg("shutdown complete")
	return nil
}
