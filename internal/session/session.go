// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package session owns in-flight reconciliation runs: progress counters,
// cancellation, atomic result publication and session retention.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thenunner/orphanage/internal/health"
	"github.com/thenunner/orphanage/internal/reconcile"
	"github.com/thenunner/orphanage/internal/relations"
	"github.com/thenunner/orphanage/internal/scanner"
)

var (
	ErrNotFound     = errors.New("scan session not found")
	ErrNotReady     = errors.New("scan result not ready")
	ErrScanInFlight = errors.New("another scan is already running")
)

// Phase is the lifecycle stage of a scan session.
type Phase string

const (
	PhaseCollecting  Phase = "collecting"
	PhaseReconciling Phase = "reconciling"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
	PhaseCancelled   Phase = "cancelled"
)

func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// BackendReport records whether one backend contributed to a scan. A
// failed backend degrades coverage without failing the run.
type BackendReport struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Torrents int    `json:"torrents"`
}

// Progress is a point-in-time view of a running scan. Counters only ever
// increase.
type Progress struct {
	SessionID      string    `json:"sessionId"`
	Phase          Phase     `json:"phase"`
	EntriesScanned int64     `json:"entriesScanned"`
	TorrentsPolled int64     `json:"torrentsPolled"`
	StartedAt      time.Time `json:"startedAt"`
}

// Outcome bundles everything a completed scan produced. Published
// atomically; consumers never observe a half-built outcome.
type Outcome struct {
	Result    *reconcile.Result  `json:"result"`
	Health    []health.Report    `json:"health"`
	Backends  []BackendReport    `json:"backends"`
	Skipped   int                `json:"skippedEntries"`
	Duration  time.Duration      `json:"duration"`
	inventory *scanner.Inventory // retained for deletion planning
	finder    *relations.Finder
}

// Inventory exposes the scan's filesystem snapshot for deletion planning.
func (o *Outcome) Inventory() *scanner.Inventory { return o.inventory }

// Finder exposes the scan's relationship index.
func (o *Outcome) Finder() *relations.Finder { return o.finder }

// Session is one reconciliation run, identified by a random ID.
type Session struct {
	ID        string
	StartedAt time.Time

	cancel func()

	entriesScanned atomic.Int64
	torrentsPolled atomic.Int64

	mu         sync.Mutex
	phase      Phase
	finishedAt time.Time
	failure    error

	// done closes when the session reaches a terminal phase; successors
	// wait on it so two collection phases never overlap.
	done chan struct{}

	outcome atomic.Pointer[Outcome]
}

func newSession(cancel func()) *Session {
	return &Session{
		ID:        newSessionID(),
		StartedAt: time.Now(),
		cancel:    cancel,
		phase:     PhaseCollecting,
		done:      make(chan struct{}),
	}
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	return Progress{
		SessionID:      s.ID,
		Phase:          phase,
		EntriesScanned: s.entriesScanned.Load(),
		TorrentsPolled: s.torrentsPolled.Load(),
		StartedAt:      s.StartedAt,
	}
}

// Outcome returns the published result, or ErrNotReady while the scan is
// still running, or the failure for failed/cancelled sessions.
func (s *Session) Outcome() (*Outcome, error) {
	if out := s.outcome.Load(); out != nil {
		return out, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseFailed, PhaseCancelled:
		return nil, s.failure
	default:
		return nil, ErrNotReady
	}
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	if p.Terminal() && s.finishedAt.IsZero() {
		s.finishedAt = time.Now()
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *Session) fail(p Phase, err error) {
	s.mu.Lock()
	s.phase = p
	s.failure = err
	if s.finishedAt.IsZero() {
		s.finishedAt = time.Now()
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *Session) phaseNow() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) finished() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.phase.Terminal()
}

// FinishedAt returns when the session reached a terminal state, if it has.
func (s *Session) FinishedAt() (time.Time, bool) {
	return s.finished()
}
