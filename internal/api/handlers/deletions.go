// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/deletion"
	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/session"
)

// DeletionsHandler previews and executes deletion plans over a completed
// scan's orphan set.
type DeletionsHandler struct {
	cfg      *domain.Config
	sessions *session.Manager
	executor *deletion.Executor

	// onReclaimed reports bytes freed by successful operations. Optional.
	onReclaimed func(bytes int64)
}

func NewDeletionsHandler(cfg *domain.Config, sessions *session.Manager, executor *deletion.Executor, onReclaimed func(int64)) *DeletionsHandler {
	return &DeletionsHandler{cfg: cfg, sessions: sessions, executor: executor, onReclaimed: onReclaimed}
}

func (h *DeletionsHandler) Routes(r chi.Router) {
	r.Post("/deletions/plan", h.PlanDeletion)
	r.Post("/deletions/execute", h.ExecutePlan)
}

type deletionRequest struct {
	SessionID string   `json:"sessionId"`
	Paths     []string `json:"paths"`
}

func (h *DeletionsHandler) PlanDeletion(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.buildPlan(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, plan)
}

func (h *DeletionsHandler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := h.buildPlan(w, r)
	if !ok {
		return
	}

	outcomes := h.executor.Execute(r.Context(), plan, h.cfg.ScopeRoots)

	var reclaimed int64
	failed := 0
	for _, out := range outcomes {
		switch out.Status {
		case deletion.OutcomeSuccess:
			reclaimed += out.Bytes
		case deletion.OutcomeFailed:
			failed++
		}
	}
	if h.onReclaimed != nil {
		h.onReclaimed(reclaimed)
	}

	log.Info().Int64("reclaimedBytes", reclaimed).Int("failed", failed).Msg("deletion plan finished")
	RespondJSON(w, http.StatusOK, map[string]any{
		"outcomes":       outcomes,
		"reclaimedBytes": reclaimed,
		"failed":         failed,
	})
}

func (h *DeletionsHandler) buildPlan(w http.ResponseWriter, r *http.Request) (*deletion.Plan, bool) {
	var req deletionRequest
	if !DecodeJSON(w, r, &req) {
		return nil, false
	}
	if len(req.Paths) == 0 {
		RespondError(w, http.StatusBadRequest, "no paths selected")
		return nil, false
	}

	sess, err := h.sessions.Get(req.SessionID)
	if err != nil {
		RespondError(w, http.StatusNotFound, "scan session not found")
		return nil, false
	}
	out, err := sess.Outcome()
	if err != nil {
		if errors.Is(err, session.ErrNotReady) {
			RespondError(w, http.StatusConflict, "scan result not ready")
			return nil, false
		}
		RespondError(w, http.StatusGone, err.Error())
		return nil, false
	}

	plan, err := deletion.Build(req.Paths, out.Inventory(), h.cfg.ScopeRoots)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return plan, true
}
