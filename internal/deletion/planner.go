// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package deletion plans and executes folder-aware bulk deletes over the
// orphan set. Planning is a pure function over the inventory; execution is
// best-effort with per-operation outcomes.
package deletion

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/thenunner/orphanage/internal/pathmap"
	"github.com/thenunner/orphanage/internal/scanner"
)

type OpKind string

const (
	OpDeleteFile   OpKind = "delete-file"
	OpDeleteFolder OpKind = "delete-folder"
)

// Operation is one planned delete. Folder operations cover every file
// underneath them.
type Operation struct {
	Kind  OpKind `json:"kind"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Files int    `json:"files"`
}

// Plan is an ordered set of delete operations with a human-reviewable
// preview. Never persisted; built on demand from a selection.
type Plan struct {
	Operations     []Operation `json:"operations"`
	ReclaimedBytes int64       `json:"reclaimedBytes"`
	Preview        []string    `json:"preview"`
}

type dirCount struct {
	total    int
	selected int
	bytes    int64
}

// Build aggregates a selection of orphan files into folder deletes where a
// whole directory is covered. A directory collapses only when every file
// under it in the inventory is selected, collapsing bottom-up so a parent
// folds in already-collapsed children.
func Build(selectedPaths []string, inv *scanner.Inventory, scopeRoots []string) (*Plan, error) {
	roots := normalizeRoots(scopeRoots)

	selected := make(map[string]struct{}, len(selectedPaths))
	for _, p := range selectedPaths {
		key := pathmap.Normalize(p)
		entry, ok := inv.Get(key)
		if !ok {
			return nil, fmt.Errorf("selected path not in current inventory: %s", p)
		}
		if entry.Dir {
			return nil, fmt.Errorf("selected path is a directory: %s", p)
		}
		if rootFor(key, roots) == "" {
			return nil, fmt.Errorf("selected path outside configured scope roots: %s", p)
		}
		selected[key] = struct{}{}
	}

	// Per-directory file accounting over the whole inventory, so a folder
	// with unselected files never collapses.
	counts := make(map[string]*dirCount)
	for key, entry := range inv.Entries() {
		if entry.Dir {
			continue
		}
		root := rootFor(key, roots)
		if root == "" {
			continue
		}
		_, isSelected := selected[key]
		for dir := filepath.Dir(key); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
			c := counts[dir]
			if c == nil {
				c = &dirCount{}
				counts[dir] = c
			}
			c.total++
			c.bytes += entry.Size
			if isSelected {
				c.selected++
			}
		}
	}

	plan := &Plan{}
	folderOps := make(map[string]Operation)

	for key := range selected {
		entry, _ := inv.Get(key)
		plan.ReclaimedBytes += entry.Size

		root := rootFor(key, roots)
		unit := collapseUnit(key, root, counts)
		if unit == "" {
			plan.Operations = append(plan.Operations, Operation{
				Kind:  OpDeleteFile,
				Path:  entry.Path,
				Bytes: entry.Size,
				Files: 1,
			})
			continue
		}
		if _, done := folderOps[unit]; !done {
			c := counts[unit]
			folderOps[unit] = Operation{
				Kind:  OpDeleteFolder,
				Path:  unit,
				Bytes: c.bytes,
				Files: c.total,
			}
		}
	}

	for _, op := range folderOps {
		plan.Operations = append(plan.Operations, op)
	}
	sort.Slice(plan.Operations, func(i, j int) bool {
		return plan.Operations[i].Path < plan.Operations[j].Path
	})

	for _, op := range plan.Operations {
		plan.Preview = append(plan.Preview, previewLine(op))
	}
	return plan, nil
}

// collapseUnit returns the topmost ancestor directory of path, below root,
// whose files are all selected. Empty string means the file deletes alone.
func collapseUnit(path, root string, counts map[string]*dirCount) string {
	var ancestors []string
	for dir := filepath.Dir(path); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		ancestors = append(ancestors, dir)
	}
	// Topmost first.
	for i := len(ancestors) - 1; i >= 0; i-- {
		c := counts[ancestors[i]]
		if c != nil && c.selected > 0 && c.selected == c.total {
			return ancestors[i]
		}
	}
	return ""
}

func previewLine(op Operation) string {
	size := humanize.IBytes(uint64(op.Bytes))
	if op.Kind == OpDeleteFolder {
		return fmt.Sprintf("delete folder %s (%d files, %s)", op.Path, op.Files, size)
	}
	return fmt.Sprintf("delete file %s (%s)", op.Path, size)
}

func normalizeRoots(scopeRoots []string) []string {
	roots := make([]string, 0, len(scopeRoots))
	for _, r := range scopeRoots {
		roots = append(roots, pathmap.Normalize(r))
	}
	return roots
}

// rootFor returns the scope root containing path, boundary-safe, or the
// empty string when no root contains it.
func rootFor(path string, roots []string) string {
	for _, root := range roots {
		if path == root {
			// A scope root is never itself a deletion target.
			return ""
		}
		if strings.HasPrefix(path, root) && len(path) > len(root) && path[len(root)] == filepath.Separator {
			return root
		}
	}
	return ""
}
