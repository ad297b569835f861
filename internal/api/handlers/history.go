// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/models"
)

// HistoryHandler serves persisted scan summaries.
type HistoryHandler struct {
	store *models.ScanRunStore
}

func NewHistoryHandler(store *models.ScanRunStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/history", h.ListRuns)
	r.Get("/history/{sessionID}", h.GetRun)
}

func (h *HistoryHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list scan history")
		RespondError(w, http.StatusInternalServerError, "failed to list scan history")
		return
	}
	if runs == nil {
		runs = []models.ScanRun{}
	}
	RespondJSON(w, http.StatusOK, runs)
}

func (h *HistoryHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			RespondError(w, http.StatusNotFound, "scan run not found")
			return
		}
		log.Error().Err(err).Msg("failed to load scan run")
		RespondError(w, http.StatusInternalServerError, "failed to load scan run")
		return
	}
	RespondJSON(w, http.StatusOK, run)
}
