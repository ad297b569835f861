// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package backend defines the adapter capability set shared by all torrent
// client variants. Adapters normalize structurally different client APIs
// into the same TorrentRecord shape so reconciliation stays backend-agnostic.
package backend

import "context"

// TorrentState is the normalized activity state across client variants.
type TorrentState string

const (
	StateDownloading TorrentState = "downloading"
	StateSeeding     TorrentState = "seeding"
	StatePaused      TorrentState = "paused"
	StateErrored     TorrentState = "errored"
	StateOther       TorrentState = "other"
)

// TorrentFile is one file a torrent believes it owns. Path is absolute in
// the client's own path space; translation to the internal path space
// happens exactly once, in the session layer.
type TorrentFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// TorrentRecord is an immutable snapshot of one torrent taken during a
// single poll.
type TorrentRecord struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	State          TorrentState  `json:"state"`
	TrackerMessage string        `json:"trackerMessage,omitempty"`
	DownloadRate   int64         `json:"downloadRate"`
	UploadRate     int64         `json:"uploadRate"`
	Category       string        `json:"category,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	Files          []TorrentFile `json:"files"`
}

// Active reports whether the torrent is actively transferring by state.
func (r *TorrentRecord) Active() bool {
	return r.State == StateDownloading || r.State == StateSeeding
}

// Adapter is the capability set the core needs from a torrent client.
// Implementations exist per backend variant and must be safe for use from
// a single scan goroutine at a time.
type Adapter interface {
	// Name returns the configured backend name used in diagnostics.
	Name() string

	// Connect establishes the client session. ErrAuth on bad credentials,
	// ErrConnect on unreachable host.
	Connect(ctx context.Context) error

	// ListTorrents returns every torrent with its full file list and
	// health state in a small bounded number of round trips.
	ListTorrents(ctx context.Context) ([]TorrentRecord, error)

	// RemoveTorrent removes a torrent from the client, optionally with
	// its data.
	RemoveTorrent(ctx context.Context, id string, deleteData bool) error
}
