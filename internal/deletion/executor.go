// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package deletion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/pathmap"
)

// ErrScopeViolation marks an operation whose target resolved outside the
// configured scope roots. It fails that single operation only.
var ErrScopeViolation = errors.New("deletion target outside scope roots")

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the result of one executed operation.
type Outcome struct {
	Path   string        `json:"path"`
	Kind   OpKind        `json:"kind"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Bytes  int64         `json:"bytes"`
}

// Executor runs deletion plans. Operations under the same scope root are
// serialized; disjoint roots may execute concurrently.
type Executor struct {
	mu        sync.Mutex
	rootLocks map[string]*sync.Mutex
}

func NewExecutor() *Executor {
	return &Executor{rootLocks: make(map[string]*sync.Mutex)}
}

func (e *Executor) lockFor(root string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.rootLocks[root]
	if !ok {
		l = &sync.Mutex{}
		e.rootLocks[root] = l
	}
	return l
}

// Execute runs every operation best-effort and returns per-operation
// outcomes in plan order. A failed operation never aborts the rest.
func (e *Executor) Execute(ctx context.Context, plan *Plan, scopeRoots []string) []Outcome {
	roots := normalizeRoots(scopeRoots)
	outcomes := make([]Outcome, 0, len(plan.Operations))

	for _, op := range plan.Operations {
		if err := ctx.Err(); err != nil {
			outcomes = append(outcomes, Outcome{Path: op.Path, Kind: op.Kind, Status: OutcomeFailed, Reason: err.Error()})
			continue
		}
		outcomes = append(outcomes, e.executeOne(op, roots))
	}

	log.Info().Int("operations", len(plan.Operations)).Msg("deletion plan executed")
	return outcomes
}

func (e *Executor) executeOne(op Operation, roots []string) Outcome {
	out := Outcome{Path: op.Path, Kind: op.Kind, Bytes: op.Bytes}

	target := pathmap.Normalize(op.Path)
	root, err := assertInScope(target, roots)
	if err != nil {
		log.Error().Err(err).Str("path", op.Path).Msg("refusing deletion")
		out.Status = OutcomeFailed
		out.Reason = err.Error()
		return out
	}

	lock := e.lockFor(root)
	lock.Lock()
	defer lock.Unlock()

	switch op.Kind {
	case OpDeleteFolder:
		out.Status, out.Reason = deleteFolder(target)
	default:
		out.Status, out.Reason = deleteFile(target)
	}

	if out.Status == OutcomeSuccess {
		log.Debug().Str("path", target).Str("kind", string(op.Kind)).Msg("deleted")
	}
	return out
}

// assertInScope re-validates the target right before the irreversible
// operation, guarding against a translation bug upstream.
func assertInScope(target string, roots []string) (string, error) {
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("%w: non-absolute path %s", ErrScopeViolation, target)
	}
	root := rootFor(target, roots)
	if root == "" {
		return "", fmt.Errorf("%w: %s", ErrScopeViolation, target)
	}
	if rel, err := filepath.Rel(root, target); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s escapes %s", ErrScopeViolation, target, root)
	}
	return root, nil
}

func deleteFile(target string) (OutcomeStatus, string) {
	info, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return OutcomeSkipped, "already gone"
		}
		return OutcomeFailed, err.Error()
	}
	if info.IsDir() {
		return OutcomeFailed, "refusing to delete directory as file"
	}
	if err := os.Remove(target); err != nil {
		if os.IsNotExist(err) {
			return OutcomeSkipped, "already gone"
		}
		return OutcomeFailed, err.Error()
	}
	return OutcomeSuccess, ""
}

func deleteFolder(target string) (OutcomeStatus, string) {
	info, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return OutcomeSkipped, "already gone"
		}
		return OutcomeFailed, err.Error()
	}
	// Symlinked folders are unlinked, never followed.
	if info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return OutcomeFailed, err.Error()
		}
		return OutcomeSuccess, ""
	}
	if !info.IsDir() {
		return OutcomeFailed, "refusing to delete file as folder"
	}
	if err := os.RemoveAll(target); err != nil {
		return OutcomeFailed, err.Error()
	}
	return OutcomeSuccess, ""
}
