// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/deletion"
	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/session"
)

type stubAdapter struct {
	name    string
	records []backend.TorrentRecord
}

func (s *stubAdapter) Name() string                          { return s.name }
func (s *stubAdapter) Connect(ctx context.Context) error     { return nil }
func (s *stubAdapter) ListTorrents(ctx context.Context) ([]backend.TorrentRecord, error) {
	return s.records, nil
}
func (s *stubAdapter) RemoveTorrent(ctx context.Context, id string, deleteData bool) error {
	return nil
}

type testEnv struct {
	router   *chi.Mux
	sessions *session.Manager
	root     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "movie"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "movie", "a.mkv"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "orphan.iso"), make([]byte, 500), 0o644))

	cfg := &domain.Config{
		Port:                    7575,
		ScopeRoots:              []string{root},
		StallGraceMinutes:       30,
		SessionRetentionMinutes: 60,
		Backends: []domain.BackendConfig{
			{Name: "main", Type: domain.BackendTypeQbit, Enabled: true, URL: "http://x"},
		},
	}

	adapter := &stubAdapter{name: "main", records: []backend.TorrentRecord{
		{ID: "T1", Name: "movie", State: backend.StateSeeding, UploadRate: 1,
			Files: []backend.TorrentFile{{Path: filepath.Join(root, "movie", "a.mkv"), Size: 100}}},
	}}
	sessions := session.NewManager(cfg, func(domain.BackendConfig) (backend.Adapter, error) {
		return adapter, nil
	}, nil)

	r := chi.NewRouter()
	NewScansHandler(sessions).Routes(r)
	NewDeletionsHandler(cfg, sessions, deletion.NewExecutor(), nil).Routes(r)
	NewRelationsHandler(sessions).Routes(r)

	return &testEnv{router: r, sessions: sessions, root: root}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) runScan(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/scans", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&started))
	id := started["sessionId"]
	require.NotEmpty(t, id)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := e.sessions.Get(id)
		require.NoError(t, err)
		if sess.Progress().Phase.Terminal() {
			return id
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan never finished")
	return ""
}

func TestScanLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.runScan(t)

	rec := env.do(t, http.MethodGet, "/scans/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress session.Progress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&progress))
	assert.Equal(t, session.PhaseCompleted, progress.Phase)

	rec = env.do(t, http.MethodGet, "/scans/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Result struct {
			Orphans []struct {
				Path string `json:"path"`
				Size int64  `json:"size"`
			} `json:"orphans"`
		} `json:"result"`
		Backends []session.BackendReport `json:"backends"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.Result.Orphans, 1)
	assert.Equal(t, filepath.Join(env.root, "orphan.iso"), out.Result.Orphans[0].Path)
	require.Len(t, out.Backends, 1)
	assert.True(t, out.Backends[0].OK)

	rec = env.do(t, http.MethodGet, "/scans/"+id+"/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var healthOut struct {
		Health []struct {
			TorrentID string `json:"torrentId"`
			State     string `json:"state"`
		} `json:"health"`
		Backends []session.BackendReport `json:"backends"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&healthOut))
	require.Len(t, healthOut.Health, 1)
	assert.Equal(t, "T1", healthOut.Health[0].TorrentID)
	require.Len(t, healthOut.Backends, 1)
	assert.Equal(t, "main", healthOut.Backends[0].Name)
}

func TestGetUnknownScanSession(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/scans/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletionPlanAndExecuteOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.runScan(t)

	orphan := filepath.Join(env.root, "orphan.iso")
	body := map[string]any{"sessionId": id, "paths": []string{orphan}}

	rec := env.do(t, http.MethodPost, "/deletions/plan", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var plan deletion.Plan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plan))
	require.Len(t, plan.Operations, 1)
	assert.Equal(t, deletion.OpDeleteFile, plan.Operations[0].Kind)
	assert.Equal(t, int64(500), plan.ReclaimedBytes)

	// Preview is side-effect free.
	assert.FileExists(t, orphan)

	rec = env.do(t, http.MethodPost, "/deletions/execute", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Outcomes       []deletion.Outcome `json:"outcomes"`
		ReclaimedBytes int64              `json:"reclaimedBytes"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, deletion.OutcomeSuccess, result.Outcomes[0].Status)
	assert.Equal(t, int64(500), result.ReclaimedBytes)
	assert.NoFileExists(t, orphan)
}

func TestDeletionRejectsUnknownPath(t *testing.T) {
	env := newTestEnv(t)
	id := env.runScan(t)

	rec := env.do(t, http.MethodPost, "/deletions/plan", map[string]any{
		"sessionId": id,
		"paths":     []string{filepath.Join(env.root, "not-there.bin")},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelationsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := env.runScan(t)

	rec := env.do(t, http.MethodGet, "/relations?sessionId="+id+"&path=/downloads/a.mkv&size=100", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Matches []struct {
			TorrentID string `json:"torrentId"`
			Exact     bool   `json:"exact"`
		} `json:"matches"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "T1", resp.Matches[0].TorrentID)
	assert.True(t, resp.Matches[0].Exact)
}

func TestStartScanInvalidConfig(t *testing.T) {
	cfg := &domain.Config{Port: 7575}
	sessions := session.NewManager(cfg, func(domain.BackendConfig) (backend.Adapter, error) {
		return &stubAdapter{}, nil
	}, nil)
	r := chi.NewRouter()
	NewScansHandler(sessions).Routes(r)

	req := httptest.NewRequest(http.MethodPost, "/scans", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
