// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scanner builds a filesystem inventory of everything under a
// scan root, sizes included, for reconciliation against backend state.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/pathmap"
)

// progressEvery bounds how often the progress sink fires during a walk.
const progressEvery = 512

// Entry is one filesystem object observed during a scan.
type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

// Inventory maps normalized paths to entries. Built fresh per scan and
// never mutated after Scan returns.
type Inventory struct {
	entries map[string]Entry

	// Skipped counts entries the walk could not read. A partial
	// inventory is still usable.
	Skipped int
}

func NewInventory() *Inventory {
	return &Inventory{entries: make(map[string]Entry)}
}

func (inv *Inventory) add(e Entry) {
	inv.entries[pathmap.Normalize(e.Path)] = e
}

// Get looks up an entry by path. The path is normalized before lookup.
func (inv *Inventory) Get(path string) (Entry, bool) {
	e, ok := inv.entries[pathmap.Normalize(path)]
	return e, ok
}

func (inv *Inventory) Has(path string) bool {
	_, ok := inv.Get(path)
	return ok
}

func (inv *Inventory) Len() int { return len(inv.entries) }

// Entries returns the underlying map. Callers must treat it as read-only.
func (inv *Inventory) Entries() map[string]Entry { return inv.entries }

// ProgressFunc receives the running count of entries visited. Called at a
// bounded cadence, never concurrently.
type ProgressFunc func(entriesVisited int64)

// Scanner walks directory trees. Symlinks are followed at most once per
// resolved target so link cycles terminate.
type Scanner struct{}

func New() *Scanner { return &Scanner{} }

// walkRoot pairs the directory actually walked with the prefix its entries
// are recorded under. The two differ below a symlink: entries keep the
// link-space path so inventory keys line up with the paths torrent clients
// report.
type walkRoot struct {
	dir   string
	alias string
}

func (w walkRoot) recordPath(path string) string {
	if w.alias == w.dir {
		return path
	}
	return w.alias + path[len(w.dir):]
}

// Scan walks the tree rooted at root and returns its inventory. Permission
// failures on individual entries are counted and skipped. The walk stops
// early only on context cancellation.
func (s *Scanner) Scan(ctx context.Context, root string, progress ProgressFunc) (*Inventory, error) {
	inv := NewInventory()

	// Resolved real paths already walked, so a symlink back into the
	// tree is not walked twice.
	visited := make(map[string]struct{})
	start := walkRoot{dir: filepath.Clean(root), alias: filepath.Clean(root)}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		visited[real] = struct{}{}
		start.dir = real
	}

	var entriesVisited int64
	report := func(force bool) {
		if progress == nil {
			return
		}
		if force || entriesVisited%progressEvery == 0 {
			progress(entriesVisited)
		}
	}

	// Symlinked directories discovered mid-walk queue their resolved
	// targets as extra roots, aliased back to the link path.
	pending := []walkRoot{start}

	for len(pending) > 0 {
		wr := pending[0]
		pending = pending[1:]

		err := filepath.WalkDir(wr.dir, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err != nil {
				if os.IsPermission(err) {
					inv.Skipped++
					log.Debug().Str("path", path).Msg("skipping unreadable entry")
					return nil
				}
				return err
			}

			record := wr.recordPath(path)

			if d.Type()&fs.ModeSymlink != 0 {
				s.followSymlink(path, record, inv, visited, &pending)
				entriesVisited++
				report(false)
				return nil
			}

			if d.IsDir() {
				inv.add(Entry{Path: record, Dir: true})
				entriesVisited++
				report(false)
				return nil
			}

			info, err := d.Info()
			if err != nil {
				inv.Skipped++
				return nil
			}
			inv.add(Entry{Path: record, Size: info.Size()})
			entriesVisited++
			report(false)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	report(true)
	log.Debug().Str("root", root).Int("entries", inv.Len()).Int("skipped", inv.Skipped).Msg("filesystem scan complete")
	return inv, nil
}

// followSymlink records the link under its link-space path and, for
// directory targets not yet visited, queues the resolved target as another
// walk root aliased to that path, so everything underneath stays keyed the
// way references reach it.
func (s *Scanner) followSymlink(path, record string, inv *Inventory, visited map[string]struct{}, pending *[]walkRoot) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		inv.Skipped++
		return
	}
	if _, seen := visited[real]; seen {
		return
	}
	visited[real] = struct{}{}

	info, err := os.Stat(path)
	if err != nil {
		inv.Skipped++
		return
	}
	if info.IsDir() {
		inv.add(Entry{Path: record, Dir: true})
		*pending = append(*pending, walkRoot{dir: real, alias: record})
		return
	}
	inv.add(Entry{Path: record, Size: info.Size()})
}
