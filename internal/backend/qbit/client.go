// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbit implements the backend adapter for qBittorrent's WebUI API
// on top of the go-qbittorrent client library.
package qbit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/domain"
)

// minWebAPIVersion is the oldest WebAPI this adapter supports; the files
// and trackers endpoints behave differently before it.
var minWebAPIVersion = semver.MustParse("2.8.3")

// Client talks to one qBittorrent instance.
type Client struct {
	name          string
	qbt           *qbt.Client
	webAPIVersion string
}

// New creates a qBittorrent adapter. No network traffic happens until
// Connect.
func New(cfg domain.BackendConfig) *Client {
	return &Client{
		name: cfg.Name,
		qbt: qbt.NewClient(qbt.Config{
			Host:     cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  30,
		}),
	}
}

func (c *Client) Name() string { return c.name }

// Connect logs in and verifies the WebAPI version is one we can trust.
func (c *Client) Connect(ctx context.Context) error {
	err := backend.WithRetry(ctx, func() error {
		if err := c.qbt.LoginCtx(ctx); err != nil {
			return classifyLoginError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	version, err := c.qbt.GetWebAPIVersionCtx(ctx)
	if err != nil {
		log.Warn().Err(err).Str("backend", c.name).Msg("qbit webapi version probe failed")
		return nil
	}
	c.webAPIVersion = version

	if v, err := semver.NewVersion(version); err == nil && v.LessThan(minWebAPIVersion) {
		return fmt.Errorf("%w: qBittorrent WebAPI %s is older than supported minimum %s",
			backend.ErrProtocol, version, minWebAPIVersion)
	}

	log.Debug().Str("backend", c.name).Str("webAPIVersion", version).Msg("qbit login ok")
	return nil
}

// ListTorrents fetches every torrent, then its file list and tracker state.
// Per-torrent detail failures degrade that torrent only.
func (c *Client) ListTorrents(ctx context.Context) ([]backend.TorrentRecord, error) {
	var torrents []qbt.Torrent
	err := backend.WithRetry(ctx, func() error {
		ts, err := c.qbt.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
		if err != nil {
			return classifyTransportError(err)
		}
		torrents = ts
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]backend.TorrentRecord, 0, len(torrents))
	for i := range torrents {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		records = append(records, c.buildRecord(ctx, &torrents[i]))
	}

	log.Debug().Str("backend", c.name).Int("torrents", len(records)).Msg("qbit listed torrents")
	return records, nil
}

// RemoveTorrent removes a torrent from qBittorrent, optionally with data.
func (c *Client) RemoveTorrent(ctx context.Context, id string, deleteData bool) error {
	return backend.WithRetry(ctx, func() error {
		if err := c.qbt.DeleteTorrentsCtx(ctx, []string{id}, deleteData); err != nil {
			return classifyTransportError(err)
		}
		return nil
	})
}

func (c *Client) buildRecord(ctx context.Context, t *qbt.Torrent) backend.TorrentRecord {
	rec := backend.TorrentRecord{
		ID:           t.Hash,
		Name:         t.Name,
		State:        mapState(t.State),
		DownloadRate: t.DlSpeed,
		UploadRate:   t.UpSpeed,
		Category:     t.Category,
		Tags:         splitTags(t.Tags),
	}

	files, err := c.qbt.GetFilesInformationCtx(ctx, t.Hash)
	if err != nil {
		log.Warn().Err(err).Str("backend", c.name).Str("torrent", t.Name).Msg("qbit files fetch failed")
	} else if files != nil {
		rec.Files = make([]backend.TorrentFile, 0, len(*files))
		for _, f := range *files {
			name := strings.TrimSpace(f.Name)
			if name == "" {
				continue
			}
			rec.Files = append(rec.Files, backend.TorrentFile{
				Path: path.Join(t.SavePath, name),
				Size: f.Size,
			})
		}
	}

	trackers, err := c.qbt.GetTorrentTrackersCtx(ctx, t.Hash)
	if err != nil {
		log.Warn().Err(err).Str("backend", c.name).Str("torrent", t.Name).Msg("qbit trackers fetch failed")
	} else {
		rec.TrackerMessage = worstTrackerMessage(trackers)
	}

	return rec
}

// worstTrackerMessage reduces a tracker list to one persistent error
// message. A torrent with any working tracker is healthy; transient
// tracker chatter is ignored.
func worstTrackerMessage(trackers []qbt.TorrentTracker) string {
	var bad []string
	working := 0

	for _, tr := range trackers {
		// DHT/PEX/LSD pseudo-entries.
		if strings.HasPrefix(tr.Url, "**") {
			continue
		}
		if tr.Status == qbt.TrackerStatusOK {
			working++
			continue
		}
		msg := strings.TrimSpace(tr.Message)
		if tr.Status == qbt.TrackerStatusNotWorking && msg != "" && !backend.IsTransientTrackerMessage(msg) {
			bad = append(bad, msg)
		}
	}

	if working > 0 || len(bad) == 0 {
		return ""
	}

	uniq := make(map[string]struct{}, len(bad))
	out := bad[:0]
	for _, m := range bad {
		if _, seen := uniq[m]; seen {
			continue
		}
		uniq[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	return strings.Join(out, " ; ")
}

func mapState(state qbt.TorrentState) backend.TorrentState {
	switch state {
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl, qbt.TorrentStateMetaDl,
		qbt.TorrentStateQueuedDl, qbt.TorrentStateForcedDl, qbt.TorrentStateCheckingDl,
		qbt.TorrentStateAllocating:
		return backend.StateDownloading
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateQueuedUp,
		qbt.TorrentStateForcedUp, qbt.TorrentStateCheckingUp:
		return backend.StateSeeding
	case qbt.TorrentStatePausedDl, qbt.TorrentStatePausedUp,
		qbt.TorrentStateStoppedDl, qbt.TorrentStateStoppedUp:
		return backend.StatePaused
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return backend.StateErrored
	default:
		return backend.StateOther
	}
}

func splitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func classifyLoginError(err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "unauthoriz") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "bad credentials") || strings.Contains(lower, "login") {
		return fmt.Errorf("%w: %v", backend.ErrAuth, err)
	}
	return classifyTransportError(err)
}

func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", backend.ErrTransient, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "dial tcp") {
		return fmt.Errorf("%w: %v", backend.ErrConnect, err)
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "504") {
		return fmt.Errorf("%w: %v", backend.ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", backend.ErrProtocol, err)
}
