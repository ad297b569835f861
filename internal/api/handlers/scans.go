// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/session"
)

// ScansHandler exposes the scan session lifecycle.
type ScansHandler struct {
	sessions *session.Manager
}

func NewScansHandler(sessions *session.Manager) *ScansHandler {
	return &ScansHandler{sessions: sessions}
}

func (h *ScansHandler) Routes(r chi.Router) {
	r.Post("/scans", h.StartScan)
	r.Get("/scans/{sessionID}", h.GetProgress)
	r.Get("/scans/{sessionID}/result", h.GetResult)
	r.Get("/scans/{sessionID}/health", h.GetHealthReports)
	r.Delete("/scans/{sessionID}", h.CancelScan)
}

func (h *ScansHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	cancelInFlight, _ := strconv.ParseBool(r.URL.Query().Get("cancelInFlight"))

	sessionID, err := h.sessions.StartScan(r.Context(), cancelInFlight)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrScanInFlight):
			RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, domain.ErrConfig):
			RespondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Error().Err(err).Msg("failed to start scan")
			RespondError(w, http.StatusInternalServerError, "failed to start scan")
		}
		return
	}

	RespondJSON(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

func (h *ScansHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, sess.Progress())
}

func (h *ScansHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	out, err := sess.Outcome()
	if err != nil {
		if errors.Is(err, session.ErrNotReady) {
			RespondError(w, http.StatusConflict, "scan result not ready")
			return
		}
		RespondError(w, http.StatusGone, err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

func (h *ScansHandler) GetHealthReports(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	out, err := sess.Outcome()
	if err != nil {
		RespondError(w, http.StatusConflict, "scan result not ready")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"health":   out.Health,
		"backends": out.Backends,
	})
}

func (h *ScansHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Cancel(sessionID); err != nil {
		RespondError(w, http.StatusNotFound, "scan session not found")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (h *ScansHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		RespondError(w, http.StatusNotFound, "scan session not found")
		return nil, false
	}
	return sess, true
}
