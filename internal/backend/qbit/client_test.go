// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbit

import (
	"context"
	"errors"
	"testing"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/backend"
)

func TestWorstTrackerMessage(t *testing.T) {
	t.Run("working tracker wins", func(t *testing.T) {
		trackers := []qbt.TorrentTracker{
			{Url: "https://a.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "torrent not registered"},
			{Url: "https://b.example/announce", Status: qbt.TrackerStatusOK},
		}
		assert.Empty(t, worstTrackerMessage(trackers))
	})

	t.Run("transient messages ignored", func(t *testing.T) {
		trackers := []qbt.TorrentTracker{
			{Url: "https://a.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "Bad Gateway"},
			{Url: "https://b.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "tracker is overloaded"},
		}
		assert.Empty(t, worstTrackerMessage(trackers))
	})

	t.Run("persistent failures reported", func(t *testing.T) {
		trackers := []qbt.TorrentTracker{
			{Url: "https://a.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "torrent not registered"},
			{Url: "https://b.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "unregistered torrent"},
			{Url: "https://c.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "torrent not registered"},
		}
		assert.Equal(t, "torrent not registered ; unregistered torrent", worstTrackerMessage(trackers))
	})

	t.Run("dht pseudo entries skipped", func(t *testing.T) {
		trackers := []qbt.TorrentTracker{
			{Url: "** [DHT] **", Status: qbt.TrackerStatusDisabled},
			{Url: "** [PeX] **", Status: qbt.TrackerStatusDisabled},
			{Url: "https://a.example/announce", Status: qbt.TrackerStatusNotWorking, Message: "unregistered"},
		}
		assert.Equal(t, "unregistered", worstTrackerMessage(trackers))
	})

	t.Run("updating trackers not treated as failed", func(t *testing.T) {
		trackers := []qbt.TorrentTracker{
			{Url: "https://a.example/announce", Status: qbt.TrackerStatusUpdating, Message: "some message"},
		}
		assert.Empty(t, worstTrackerMessage(trackers))
	})
}

func TestMapState(t *testing.T) {
	tests := []struct {
		state qbt.TorrentState
		want  backend.TorrentState
	}{
		{qbt.TorrentStateDownloading, backend.StateDownloading},
		{qbt.TorrentStateStalledDl, backend.StateDownloading},
		{qbt.TorrentStateMetaDl, backend.StateDownloading},
		{qbt.TorrentStateUploading, backend.StateSeeding},
		{qbt.TorrentStateStalledUp, backend.StateSeeding},
		{qbt.TorrentStateForcedUp, backend.StateSeeding},
		{qbt.TorrentStatePausedUp, backend.StatePaused},
		{qbt.TorrentStateStoppedDl, backend.StatePaused},
		{qbt.TorrentStateError, backend.StateErrored},
		{qbt.TorrentStateMissingFiles, backend.StateErrored},
		{qbt.TorrentStateMoving, backend.StateOther},
		{qbt.TorrentStateCheckingResumeData, backend.StateOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mapState(tt.state), "state %s", tt.state)
	}
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Nil(t, splitTags("   "))
	assert.Equal(t, []string{"tv", "cross-seed"}, splitTags("tv, cross-seed"))
	assert.Equal(t, []string{"one"}, splitTags("one,"))
}

func TestClassifyLoginError(t *testing.T) {
	err := classifyLoginError(errors.New("login failed: Forbidden"))
	require.ErrorIs(t, err, backend.ErrAuth)

	err = classifyLoginError(errors.New("dial tcp 127.0.0.1:8080: connection refused"))
	require.ErrorIs(t, err, backend.ErrConnect)
}

func TestClassifyTransportError(t *testing.T) {
	assert.ErrorIs(t, classifyTransportError(errors.New("unexpected status: 503")), backend.ErrTransient)
	assert.ErrorIs(t, classifyTransportError(errors.New("dial tcp: no such host")), backend.ErrConnect)
	assert.ErrorIs(t, classifyTransportError(errors.New("invalid character '<'")), backend.ErrProtocol)
	assert.ErrorIs(t, classifyTransportError(context.Canceled), context.Canceled)
}
