// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP surface over the scan core.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/api/handlers"
	"github.com/thenunner/orphanage/internal/deletion"
	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/metrics"
	"github.com/thenunner/orphanage/internal/models"
	"github.com/thenunner/orphanage/internal/session"
)

// Server hosts the REST API and, when enabled, the metrics endpoint.
type Server struct {
	cfg      *domain.Config
	sessions *session.Manager
	store    *models.ScanRunStore
	metrics  *metrics.Manager

	httpServer *http.Server
}

func NewServer(cfg *domain.Config, sessions *session.Manager, store *models.ScanRunStore, metricsManager *metrics.Manager) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		metrics:  metricsManager,
	}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}).Handler)

	executor := deletion.NewExecutor()
	var onReclaimed func(int64)
	if s.metrics != nil {
		onReclaimed = s.metrics.BytesReclaimed
	}

	r.Route("/api", func(r chi.Router) {
		handlers.NewHealthHandler().Routes(r)
		handlers.NewScansHandler(s.sessions).Routes(r)
		handlers.NewDeletionsHandler(s.cfg, s.sessions, executor, onReclaimed).Routes(r)
		handlers.NewRelationsHandler(s.sessions).Routes(r)
		handlers.NewTorrentsHandler(s.cfg, nil).Routes(r)
		if s.store != nil {
			handlers.NewHistoryHandler(s.store).Routes(r)
		}
	})

	if s.metrics != nil && s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return r
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Trace().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
