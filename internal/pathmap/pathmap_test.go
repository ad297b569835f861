// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pathmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenunner/orphanage/internal/domain"
)

func TestToInternal(t *testing.T) {
	tr := New("/downloads", "/data/torrents")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "maps prefix", in: "/downloads/movie/a.mkv", want: "/data/torrents/movie/a.mkv"},
		{name: "maps prefix root", in: "/downloads", want: "/data/torrents"},
		{name: "cleans separators", in: "/downloads//movie/../movie/a.mkv", want: "/data/torrents/movie/a.mkv"},
		{name: "rejects outside prefix", in: "/other/movie/a.mkv", wantErr: true},
		{name: "rejects sibling with shared prefix", in: "/downloads-old/a.mkv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.ToInternal(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToClientSpace(t *testing.T) {
	tr := New("/downloads", "/data/torrents")

	assert.Equal(t, "/downloads/movie/a.mkv", tr.ToClientSpace("/data/torrents/movie/a.mkv"))
	// Outside the mapped prefix passes through.
	assert.Equal(t, "/srv/other/a.mkv", tr.ToClientSpace("/srv/other/a.mkv"))
}

func TestIdentityTranslator(t *testing.T) {
	tr := New("", "")

	got, err := tr.ToInternal("/data/torrents/a.mkv")
	require.NoError(t, err)
	assert.Equal(t, "/data/torrents/a.mkv", got)
	assert.Equal(t, "/data/torrents/a.mkv", tr.ToClientSpace("/data/torrents/a.mkv"))
}

func TestRoundTripIsIdempotent(t *testing.T) {
	tr := New("/downloads", "/data/torrents")

	internal, err := tr.ToInternal("/downloads/show/ep1.mkv")
	require.NoError(t, err)

	back := tr.ToClientSpace(internal)
	again, err := tr.ToInternal(back)
	require.NoError(t, err)
	assert.Equal(t, internal, again)
}
