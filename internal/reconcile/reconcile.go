// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package reconcile computes the orphan and runaway sets from one
// filesystem inventory snapshot and one backend reference snapshot.
package reconcile

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/thenunner/orphanage/internal/pathmap"
	"github.com/thenunner/orphanage/internal/scanner"
)

// Reference records which torrents claim a path and every size they
// declare for it. Cross-seeded files carry multiple torrent IDs and may
// carry diverging sizes.
type Reference struct {
	TorrentIDs map[string]struct{}
	Sizes      map[int64]struct{}
}

// ReferenceSet maps normalized paths to their references.
type ReferenceSet struct {
	refs map[string]*Reference
}

func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{refs: make(map[string]*Reference)}
}

// Add records that torrentID references path with the given declared size.
func (rs *ReferenceSet) Add(path, torrentID string, size int64) {
	key := pathmap.Normalize(path)
	ref, ok := rs.refs[key]
	if !ok {
		ref = &Reference{
			TorrentIDs: make(map[string]struct{}),
			Sizes:      make(map[int64]struct{}),
		}
		rs.refs[key] = ref
	}
	ref.TorrentIDs[torrentID] = struct{}{}
	ref.Sizes[size] = struct{}{}
}

// Get returns the reference for a path, normalizing before lookup.
func (rs *ReferenceSet) Get(path string) (*Reference, bool) {
	ref, ok := rs.refs[pathmap.Normalize(path)]
	return ref, ok
}

func (rs *ReferenceSet) Has(path string) bool {
	_, ok := rs.Get(path)
	return ok
}

func (rs *ReferenceSet) Len() int { return len(rs.refs) }

// OrphanFile is a file on disk no torrent references.
type OrphanFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// RunawayFile is a path a torrent references that is missing on disk or
// whose on-disk size matches none of the declared sizes.
type RunawayFile struct {
	Path       string   `json:"path"`
	TorrentIDs []string `json:"torrentIds"`
	Missing    bool     `json:"missing"`
	DiskSize   int64    `json:"diskSize,omitempty"`
}

// Result is immutable once returned. Orphans and Runaways are sorted by
// path for presentation stability.
type Result struct {
	Orphans      []OrphanFile  `json:"orphans"`
	Runaways     []RunawayFile `json:"runaways"`
	OrphanBytes  int64         `json:"orphanBytes"`
	runawayPaths map[string]struct{}
}

// RunawaySet returns the runaway paths as a lookup set, keys normalized.
func (r *Result) RunawaySet() map[string]struct{} {
	return r.runawayPaths
}

// Reconcile diffs the inventory against the reference set. Only files are
// classified; directories feed the deletion planner's aggregation instead.
func Reconcile(inv *scanner.Inventory, refs *ReferenceSet, scopeRoots []string) *Result {
	res := &Result{runawayPaths: make(map[string]struct{})}

	roots := make([]string, 0, len(scopeRoots))
	for _, r := range scopeRoots {
		roots = append(roots, pathmap.Normalize(r))
	}

	for key, entry := range inv.Entries() {
		if entry.Dir {
			continue
		}
		if !underAnyRoot(key, roots) {
			continue
		}
		if refs.Has(key) {
			continue
		}
		res.Orphans = append(res.Orphans, OrphanFile{Path: entry.Path, Size: entry.Size})
		res.OrphanBytes += entry.Size
	}

	for key, ref := range refs.refs {
		entry, onDisk := inv.Get(key)
		if onDisk {
			if _, matches := ref.Sizes[entry.Size]; matches {
				continue
			}
		}
		res.Runaways = append(res.Runaways, RunawayFile{
			Path:       key,
			TorrentIDs: sortedIDs(ref.TorrentIDs),
			Missing:    !onDisk,
			DiskSize:   entry.Size,
		})
		res.runawayPaths[key] = struct{}{}
	}

	sort.Slice(res.Orphans, func(i, j int) bool { return res.Orphans[i].Path < res.Orphans[j].Path })
	sort.Slice(res.Runaways, func(i, j int) bool { return res.Runaways[i].Path < res.Runaways[j].Path })
	return res
}

func sortedIDs(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// underAnyRoot is a boundary-safe prefix check so /data does not match
// /database.
func underAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		if path == root {
			return true
		}
		if strings.HasPrefix(path, root) && len(path) > len(root) && path[len(root)] == filepath.Separator {
			return true
		}
	}
	return false
}
