// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathmap translates between client-reported paths and the path
// space visible to this process. Torrent clients frequently run in
// containers whose mounts differ from the host running the scan; each
// backend is configured with a (PathIn, PathOut) prefix pair describing
// that mapping.
package pathmap

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/thenunner/orphanage/internal/domain"
)

// Translator maps paths for a single backend. The zero pair is the
// identity mapping for clients that share the scanner's filesystem view.
type Translator struct {
	pathIn  string
	pathOut string
}

// New builds a Translator from a config prefix pair. Both prefixes empty
// means identity. A half-configured pair is rejected at config validation,
// not here.
func New(pathIn, pathOut string) *Translator {
	t := &Translator{}
	if pathIn != "" {
		t.pathIn = Normalize(pathIn)
		t.pathOut = Normalize(pathOut)
	}
	return t
}

// ToInternal converts a client-reported path into the internal path space.
// A client path that does not live under the configured PathIn prefix
// signals a misconfigured mapping and is surfaced as a ConfigError.
func (t *Translator) ToInternal(clientPath string) (string, error) {
	p := Normalize(clientPath)
	if t.pathIn == "" {
		return p, nil
	}
	if !hasPrefixAtBoundary(p, t.pathIn) {
		return "", &domain.ConfigError{
			Field:  "pathIn",
			Reason: "client path " + clientPath + " is outside configured prefix " + t.pathIn,
		}
	}
	return Normalize(t.pathOut + p[len(t.pathIn):]), nil
}

// ToClientSpace converts an internal path back into the client's path
// space. Paths outside the configured PathOut prefix pass through
// unchanged, matching how they would have arrived.
func (t *Translator) ToClientSpace(internalPath string) string {
	p := Normalize(internalPath)
	if t.pathIn == "" || !hasPrefixAtBoundary(p, t.pathOut) {
		return p
	}
	return Normalize(t.pathIn + p[len(t.pathOut):])
}

// Normalize cleans a path for comparison. Separators collapse through
// filepath.Clean; Windows additionally case-folds to match filesystem
// semantics.
func Normalize(path string) string {
	p := filepath.Clean(filepath.FromSlash(path))
	if runtime.GOOS == "windows" {
		p = strings.ToLower(p)
	}
	return p
}

// hasPrefixAtBoundary reports whether path is prefix itself or a descendant
// of it. /data/foo must not match /data/foobar.
func hasPrefixAtBoundary(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) > len(prefix) && path[len(prefix)] == filepath.Separator
}
