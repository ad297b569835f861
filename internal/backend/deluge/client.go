// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package deluge implements the backend adapter for the Deluge Web UI.
// Deluge exposes a JSON-RPC endpoint at /json with a single password login
// and a web.update_ui call that returns every torrent in one round trip.
package deluge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/buildinfo"
	"github.com/thenunner/orphanage/internal/domain"
)

// updateUIFields is the field set requested from web.update_ui. One call
// carries everything a scan needs.
var updateUIFields = []string{
	"name", "state", "save_path", "download_location", "files",
	"label", "tracker_status", "download_payload_rate", "upload_payload_rate",
}

// Client talks to one Deluge Web UI instance.
type Client struct {
	name     string
	baseURL  string
	password string
	http     *http.Client
	reqID    atomic.Int64
}

// New creates a Deluge adapter. httpClient may be nil, in which case a
// cookie-jar client with a 30s timeout is used; an injected client must
// carry its own jar for the session cookie to survive login.
func New(cfg domain.BackendConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	return &Client{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		password: cfg.Password,
		http:     httpClient,
	}
}

func (c *Client) Name() string { return c.name }

// Connect performs auth.login. Deluge answers false (not an error) on a
// wrong password.
func (c *Client) Connect(ctx context.Context) error {
	return backend.WithRetry(ctx, func() error {
		var ok bool
		if err := c.rpc(ctx, "auth.login", []any{c.password}, &ok); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: deluge auth.login returned false", backend.ErrAuth)
		}
		log.Debug().Str("backend", c.name).Msg("deluge login ok")
		return nil
	})
}

// ListTorrents fetches the full torrent table in a single update_ui call.
func (c *Client) ListTorrents(ctx context.Context) ([]backend.TorrentRecord, error) {
	var res struct {
		Torrents map[string]delugeTorrent `json:"torrents"`
	}
	err := backend.WithRetry(ctx, func() error {
		return c.rpc(ctx, "web.update_ui", []any{updateUIFields, map[string]any{}}, &res)
	})
	if err != nil {
		return nil, err
	}

	records := make([]backend.TorrentRecord, 0, len(res.Torrents))
	for id, t := range res.Torrents {
		records = append(records, t.toRecord(id))
	}

	log.Debug().Str("backend", c.name).Int("torrents", len(records)).Msg("deluge listed torrents")
	return records, nil
}

// RemoveTorrent removes a torrent from Deluge, optionally deleting data.
func (c *Client) RemoveTorrent(ctx context.Context, id string, deleteData bool) error {
	return backend.WithRetry(ctx, func() error {
		var ok bool
		if err := c.rpc(ctx, "core.remove_torrent", []any{id, deleteData}, &ok); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: core.remove_torrent returned false for %s", backend.ErrProtocol, id)
		}
		return nil
	})
}

type delugeTorrent struct {
	Name             string       `json:"name"`
	State            string       `json:"state"`
	SavePath         string       `json:"save_path"`
	DownloadLocation string       `json:"download_location"`
	TrackerStatus    string       `json:"tracker_status"`
	Label            string       `json:"label"`
	DownloadRate     float64      `json:"download_payload_rate"`
	UploadRate       float64      `json:"upload_payload_rate"`
	Files            []delugeFile `json:"files"`
}

type delugeFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func (t delugeTorrent) toRecord(id string) backend.TorrentRecord {
	savePath := t.SavePath
	if savePath == "" {
		savePath = t.DownloadLocation
	}

	files := make([]backend.TorrentFile, 0, len(t.Files))
	for _, f := range t.Files {
		if f.Path == "" {
			continue
		}
		files = append(files, backend.TorrentFile{
			Path: path.Join(savePath, f.Path),
			Size: f.Size,
		})
	}

	return backend.TorrentRecord{
		ID:             id,
		Name:           t.Name,
		State:          mapState(t.State),
		TrackerMessage: trackerMessage(t.TrackerStatus),
		DownloadRate:   int64(t.DownloadRate),
		UploadRate:     int64(t.UploadRate),
		Category:       t.Label,
		Files:          files,
	}
}

func mapState(state string) backend.TorrentState {
	switch state {
	case "Downloading", "Checking", "Allocating":
		return backend.StateDownloading
	case "Seeding":
		return backend.StateSeeding
	case "Paused", "Queued":
		return backend.StatePaused
	case "Error":
		return backend.StateErrored
	default:
		return backend.StateOther
	}
}

// trackerMessage extracts an error message from Deluge's tracker_status
// field, which reads "Announce OK" when healthy and "Error: ..." otherwise.
func trackerMessage(status string) string {
	s := strings.TrimSpace(status)
	if s == "" || !strings.Contains(strings.ToLower(s), "error") {
		return ""
	}
	return s
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     int64  `json:"id"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) rpc(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: c.reqID.Add(1)})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned HTTP %d", backend.ErrTransient, method, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s returned HTTP %d", backend.ErrProtocol, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", backend.ErrProtocol, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: %s (code %d)", backend.ErrProtocol, method, rpcResp.Error.Message, rpcResp.Error.Code)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%w: unmarshal %s result: %v", backend.ErrProtocol, method, err)
		}
	}
	return nil
}

func classifyTransportError(method string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s timed out: %v", backend.ErrTransient, method, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", backend.ErrConnect, method, err)
}
