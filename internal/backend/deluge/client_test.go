// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package deluge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(domain.BackendConfig{
		Name:     "deluge-test",
		Type:     domain.BackendTypeDeluge,
		URL:      srv.URL,
		Password: "deluge",
	}, srv.Client())
}

func rpcReply(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"result": result,
		"error":  nil,
		"id":     1,
	}))
}

func TestConnect(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auth.login", req.Method)
		assert.Equal(t, "/json", r.URL.Path)
		rpcReply(t, w, true)
	})

	require.NoError(t, c.Connect(context.Background()))
}

func TestConnectBadPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcReply(t, w, false)
	})

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrAuth)
}

func TestListTorrents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "web.update_ui", req.Method)

		rpcReply(t, w, map[string]any{
			"torrents": map[string]any{
				"abc123": map[string]any{
					"name":                  "Some.Movie.2021",
					"state":                 "Seeding",
					"save_path":             "/downloads/movies",
					"label":                 "movies",
					"tracker_status":        "Announce OK",
					"download_payload_rate": 0,
					"upload_payload_rate":   1024,
					"files": []map[string]any{
						{"path": "Some.Movie.2021/movie.mkv", "size": 100},
						{"path": "Some.Movie.2021/movie.nfo", "size": 1},
					},
				},
				"def456": map[string]any{
					"name":           "Broken.Show",
					"state":          "Paused",
					"save_path":      "",
					"download_location": "/downloads/tv",
					"tracker_status": "Error: unregistered torrent",
					"files": []map[string]any{
						{"path": "Broken.Show/ep1.mkv", "size": 700},
					},
				},
			},
		})
	})

	records, err := c.ListTorrents(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := make(map[string]backend.TorrentRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	movie := byID["abc123"]
	assert.Equal(t, backend.StateSeeding, movie.State)
	assert.Equal(t, "movies", movie.Category)
	assert.Empty(t, movie.TrackerMessage, "healthy tracker status must not surface as a message")
	require.Len(t, movie.Files, 2)
	assert.Equal(t, "/downloads/movies/Some.Movie.2021/movie.mkv", movie.Files[0].Path)
	assert.EqualValues(t, 100, movie.Files[0].Size)

	show := byID["def456"]
	assert.Equal(t, backend.StatePaused, show.State)
	assert.Equal(t, "Error: unregistered torrent", show.TrackerMessage)
	// download_location is the fallback when save_path is empty.
	assert.Equal(t, "/downloads/tv/Broken.Show/ep1.mkv", show.Files[0].Path)
}

func TestRPCErrorIsProtocolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"result": nil,
			"error":  map[string]any{"message": "unknown method", "code": 2},
		}))
	})

	_, err := c.ListTorrents(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrProtocol)
}

func TestServerErrorIsTransient(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.ListTorrents(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrTransient)
	assert.Greater(t, calls, 1, "transient errors are retried")
}

func TestMapState(t *testing.T) {
	assert.Equal(t, backend.StateDownloading, mapState("Downloading"))
	assert.Equal(t, backend.StateSeeding, mapState("Seeding"))
	assert.Equal(t, backend.StatePaused, mapState("Queued"))
	assert.Equal(t, backend.StateErrored, mapState("Error"))
	assert.Equal(t, backend.StateOther, mapState("Moving"))
}
