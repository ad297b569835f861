// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/domain"
)

type removalAdapter struct {
	stubAdapter
	removed   []string
	removeErr error
}

func (a *removalAdapter) RemoveTorrent(ctx context.Context, id string, deleteData bool) error {
	if a.removeErr != nil {
		return a.removeErr
	}
	a.removed = append(a.removed, id)
	return nil
}

func TestRemoveTorrentsBatch(t *testing.T) {
	cfg := &domain.Config{
		Backends: []domain.BackendConfig{
			{Name: "main", Type: domain.BackendTypeQbit, Enabled: true, URL: "http://x"},
		},
	}
	adapter := &removalAdapter{}
	r := chi.NewRouter()
	NewTorrentsHandler(cfg, func(domain.BackendConfig) (backend.Adapter, error) {
		return adapter, nil
	}).Routes(r)

	body, _ := json.Marshal(map[string]any{
		"torrents": []map[string]any{
			{"backend": "main", "id": "T1", "deleteData": true},
			{"backend": "main", "id": "T2"},
			{"backend": "ghost", "id": "T3"},
		},
	})
	req := httptest.NewRequest(http.MethodDelete, "/torrents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcomes []removeTorrentOutcome `json:"outcomes"`
		Removed  int                    `json:"removed"`
		Failed   int                    `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, 2, resp.Removed)
	assert.Equal(t, 1, resp.Failed)
	assert.True(t, resp.Outcomes[0].Removed)
	assert.True(t, resp.Outcomes[1].Removed)
	assert.False(t, resp.Outcomes[2].Removed)
	assert.Contains(t, resp.Outcomes[2].Error, "unknown backend")
	assert.Equal(t, []string{"T1", "T2"}, adapter.removed)
}

func TestRemoveTorrentsBackendFailure(t *testing.T) {
	cfg := &domain.Config{
		Backends: []domain.BackendConfig{
			{Name: "main", Type: domain.BackendTypeQbit, Enabled: true, URL: "http://x"},
		},
	}
	adapter := &removalAdapter{removeErr: errors.New("connection reset")}
	r := chi.NewRouter()
	NewTorrentsHandler(cfg, func(domain.BackendConfig) (backend.Adapter, error) {
		return adapter, nil
	}).Routes(r)

	body, _ := json.Marshal(map[string]any{
		"torrents": []map[string]any{{"backend": "main", "id": "T1"}},
	})
	req := httptest.NewRequest(http.MethodDelete, "/torrents", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Outcomes []removeTorrentOutcome `json:"outcomes"`
		Failed   int                    `json:"failed"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, 1, resp.Failed)
	assert.Contains(t, resp.Outcomes[0].Error, "connection reset")
}

func TestRemoveTorrentsEmptyBatch(t *testing.T) {
	cfg := &domain.Config{}
	r := chi.NewRouter()
	NewTorrentsHandler(cfg, func(domain.BackendConfig) (backend.Adapter, error) {
		return &stubAdapter{}, nil
	}).Routes(r)

	req := httptest.NewRequest(http.MethodDelete, "/torrents", bytes.NewReader([]byte(`{"torrents":[]}`)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
