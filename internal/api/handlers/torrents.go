// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/session"
)

// TorrentsHandler removes torrents from their backend, the counterpart to
// deleting orphan files: runaway references are cleaned up client-side.
type TorrentsHandler struct {
	cfg     *domain.Config
	factory session.AdapterFactory
}

func NewTorrentsHandler(cfg *domain.Config, factory session.AdapterFactory) *TorrentsHandler {
	if factory == nil {
		factory = session.DefaultAdapterFactory
	}
	return &TorrentsHandler{cfg: cfg, factory: factory}
}

func (h *TorrentsHandler) Routes(r chi.Router) {
	r.Delete("/torrents", h.RemoveTorrents)
}

type removeTorrentItem struct {
	Backend    string `json:"backend"`
	ID         string `json:"id"`
	DeleteData bool   `json:"deleteData"`
}

type removeTorrentRequest struct {
	Torrents []removeTorrentItem `json:"torrents"`
}

type removeTorrentOutcome struct {
	Backend string `json:"backend"`
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
	Error   string `json:"error,omitempty"`
}

// RemoveTorrents removes a batch of torrents, best-effort per item. One
// adapter connection is made per backend named in the batch.
func (h *TorrentsHandler) RemoveTorrents(w http.ResponseWriter, r *http.Request) {
	var req removeTorrentRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Torrents) == 0 {
		RespondError(w, http.StatusBadRequest, "no torrents selected")
		return
	}

	adapters := make(map[string]backend.Adapter)
	outcomes := make([]removeTorrentOutcome, 0, len(req.Torrents))
	removed := 0

	for _, item := range req.Torrents {
		out := removeTorrentOutcome{Backend: item.Backend, ID: item.ID}

		if item.ID == "" {
			out.Error = "torrent id is required"
			outcomes = append(outcomes, out)
			continue
		}

		adapter, err := h.adapterFor(r.Context(), adapters, item.Backend)
		if err != nil {
			out.Error = err.Error()
			outcomes = append(outcomes, out)
			continue
		}

		if err := adapter.RemoveTorrent(r.Context(), item.ID, item.DeleteData); err != nil {
			log.Error().Err(err).Str("backend", item.Backend).Str("torrent", item.ID).Msg("torrent removal failed")
			out.Error = err.Error()
			outcomes = append(outcomes, out)
			continue
		}

		log.Info().Str("backend", item.Backend).Str("torrent", item.ID).Bool("deleteData", item.DeleteData).Msg("torrent removed")
		out.Removed = true
		removed++
		outcomes = append(outcomes, out)
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"outcomes": outcomes,
		"removed":  removed,
		"failed":   len(outcomes) - removed,
	})
}

func (h *TorrentsHandler) adapterFor(ctx context.Context, cache map[string]backend.Adapter, name string) (backend.Adapter, error) {
	if adapter, ok := cache[name]; ok {
		return adapter, nil
	}

	var target *domain.BackendConfig
	for i := range h.cfg.Backends {
		if h.cfg.Backends[i].Name == name && h.cfg.Backends[i].Enabled {
			target = &h.cfg.Backends[i]
			break
		}
	}
	if target == nil {
		return nil, &domain.ConfigError{Field: "backend", Reason: "unknown backend: " + name}
	}

	adapter, err := h.factory(*target)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx); err != nil {
		log.Warn().Err(err).Str("backend", name).Msg("backend unreachable for torrent removal")
		return nil, err
	}
	cache[name] = adapter
	return adapter, nil
}
