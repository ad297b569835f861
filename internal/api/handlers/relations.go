// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/thenunner/orphanage/internal/session"
)

// RelationsHandler answers "which torrent produced this file" lookups over
// a completed scan.
type RelationsHandler struct {
	sessions *session.Manager
}

func NewRelationsHandler(sessions *session.Manager) *RelationsHandler {
	return &RelationsHandler{sessions: sessions}
}

func (h *RelationsHandler) Routes(r chi.Router) {
	r.Get("/relations", h.FindRelations)
}

func (h *RelationsHandler) FindRelations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		RespondError(w, http.StatusBadRequest, "path is required")
		return
	}
	size, _ := strconv.ParseInt(q.Get("size"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 10
	}

	sess, err := h.sessions.Get(q.Get("sessionId"))
	if err != nil {
		RespondError(w, http.StatusNotFound, "scan session not found")
		return
	}
	out, err := sess.Outcome()
	if err != nil {
		RespondError(w, http.StatusConflict, "scan result not ready")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"matches": out.Finder().Find(path, size, limit),
	})
}
