// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package relations links orphan files back to the torrents that likely
// produced them, so an operator can tell a renamed copy from true junk
// before deleting it.
package relations

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/moistari/rls"

	"github.com/thenunner/orphanage/internal/backend"
)

// Match is one candidate torrent for an orphan file, best matches first.
// Exact matches pair filename and declared size; fuzzy matches rank by
// release-name similarity.
type Match struct {
	TorrentID string `json:"torrentId"`
	Backend   string `json:"backend"`
	Name      string `json:"name"`
	Exact     bool   `json:"exact"`
	Rank      int    `json:"rank"`
}

type candidate struct {
	torrentID string
	backend   string
	name      string
	release   rls.Release
	// base filename -> declared sizes
	files map[string]map[int64]struct{}
}

// Finder indexes one scan's torrent population for relationship lookups.
// Index everything first; Find is then read-only and safe for concurrent
// callers.
type Finder struct {
	candidates []candidate
}

func NewFinder() *Finder {
	return &Finder{}
}

// Index adds one backend's poll results to the finder.
func (f *Finder) Index(backendName string, records []backend.TorrentRecord) {
	for _, rec := range records {
		c := candidate{
			torrentID: rec.ID,
			backend:   backendName,
			name:      rec.Name,
			release:   rls.ParseString(rec.Name),
			files:     make(map[string]map[int64]struct{}, len(rec.Files)),
		}
		for _, file := range rec.Files {
			base := strings.ToLower(filepath.Base(file.Path))
			sizes, ok := c.files[base]
			if !ok {
				sizes = make(map[int64]struct{})
				c.files[base] = sizes
			}
			sizes[file.Size] = struct{}{}
		}
		f.candidates = append(f.candidates, c)
	}
}

// Find returns up to limit candidate torrents for the orphan at path with
// the given on-disk size. Exact filename+size pairs short-circuit fuzzy
// ranking; episode-numbered files only match candidates covering the same
// episode.
func (f *Finder) Find(path string, size int64, limit int) []Match {
	base := strings.ToLower(filepath.Base(path))
	orphan := rls.ParseString(filepath.Base(path))
	orphanTitle := titleKey(orphan)

	var exact, ranked []Match
	for i := range f.candidates {
		c := &f.candidates[i]

		if sizes, ok := c.files[base]; ok {
			if _, sameSize := sizes[size]; sameSize {
				exact = append(exact, Match{
					TorrentID: c.torrentID,
					Backend:   c.backend,
					Name:      c.name,
					Exact:     true,
				})
				continue
			}
		}

		if orphanTitle == "" || !episodeCompatible(orphan, c.release) {
			continue
		}

		rank := fuzzy.RankMatchNormalizedFold(orphanTitle, titleKey(c.release))
		if rank < 0 {
			continue
		}
		ranked = append(ranked, Match{
			TorrentID: c.torrentID,
			Backend:   c.backend,
			Name:      c.name,
			Rank:      rank,
		})
	}

	if len(exact) > 0 {
		sort.Slice(exact, func(i, j int) bool { return exact[i].Name < exact[j].Name })
		return clip(exact, limit)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Rank != ranked[j].Rank {
			return ranked[i].Rank < ranked[j].Rank
		}
		return ranked[i].Name < ranked[j].Name
	})
	return clip(ranked, limit)
}

// episodeCompatible rejects cross-episode matches: an S01E02 file never
// relates to an S01E05 torrent, while a season-pack candidate (episode
// zero) covers any episode of that season.
func episodeCompatible(orphan, cand rls.Release) bool {
	if orphan.Series == 0 && orphan.Episode == 0 {
		return true
	}
	if cand.Series == 0 && cand.Episode == 0 {
		return true
	}
	if orphan.Series > 0 && cand.Series > 0 && orphan.Series != cand.Series {
		return false
	}
	if orphan.Episode > 0 && cand.Episode > 0 && orphan.Episode != cand.Episode {
		return false
	}
	return true
}

func titleKey(r rls.Release) string {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return ""
	}
	return strings.ToLower(title)
}

func clip(matches []Match, limit int) []Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
