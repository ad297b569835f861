// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/backend/deluge"
	"github.com/thenunner/orphanage/internal/backend/qbit"
	"github.com/thenunner/orphanage/internal/domain"
	"github.com/thenunner/orphanage/internal/health"
	"github.com/thenunner/orphanage/internal/pathmap"
	"github.com/thenunner/orphanage/internal/reconcile"
	"github.com/thenunner/orphanage/internal/relations"
	"github.com/thenunner/orphanage/internal/scanner"
)

// AdapterFactory builds a backend adapter from its config. Swapped out in
// tests.
type AdapterFactory func(cfg domain.BackendConfig) (backend.Adapter, error)

// DefaultAdapterFactory wires the real client adapters.
func DefaultAdapterFactory(cfg domain.BackendConfig) (backend.Adapter, error) {
	switch cfg.Type {
	case domain.BackendTypeQbit:
		return qbit.New(cfg), nil
	case domain.BackendTypeDeluge:
		return deluge.New(cfg, nil), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// RunSummary is the durable digest of one completed scan.
type RunSummary struct {
	SessionID    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Phase        Phase
	OrphanCount  int
	RunawayCount int
	OrphanBytes  int64
	Skipped      int
	Duration     time.Duration
	Backends     []BackendReport
}

// RunRecorder persists completed scans. Optional; nil disables history.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunSummary) error
}

// Manager runs one reconciliation at a time and keeps finished sessions
// queryable until the retention window evicts them.
type Manager struct {
	cfg      *domain.Config
	factory  AdapterFactory
	scanner  *scanner.Scanner
	recorder RunRecorder

	mu       sync.Mutex
	sessions map[string]*Session
	activeID string

	// last time each torrent was seen transferring, keyed
	// backendName/torrentID; feeds the stall classifier across scans
	lastActive map[string]time.Time

	onScanDone func(sess *Session, out *Outcome)
}

func NewManager(cfg *domain.Config, factory AdapterFactory, recorder RunRecorder) *Manager {
	if factory == nil {
		factory = DefaultAdapterFactory
	}
	return &Manager{
		cfg:        cfg,
		factory:    factory,
		scanner:    scanner.New(),
		recorder:   recorder,
		sessions:   make(map[string]*Session),
		lastActive: make(map[string]time.Time),
	}
}

// SetScanDoneHook registers a callback invoked after each scan reaches a
// terminal state. Used for metrics.
func (m *Manager) SetScanDoneHook(fn func(sess *Session, out *Outcome)) {
	m.onScanDone = fn
}

// StartScan launches a new reconciliation run. With cancelInFlight the
// currently running scan, if any, is cancelled first; otherwise a running
// scan makes this fail with ErrScanInFlight.
func (m *Manager) StartScan(ctx context.Context, cancelInFlight bool) (string, error) {
	if err := m.cfg.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.evictLocked()
	var prev *Session
	if active, ok := m.sessions[m.activeID]; ok && !active.phaseNow().Terminal() {
		if !cancelInFlight {
			m.mu.Unlock()
			return "", ErrScanInFlight
		}
		active.cancel()
		prev = active
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := newSession(cancel)
	m.sessions[sess.ID] = sess
	m.activeID = sess.ID
	m.mu.Unlock()

	log.Info().Str("sessionID", sess.ID).Msg("scan started")
	go func() {
		// One reconciliation at a time: a cancelled predecessor must
		// reach its terminal phase before the next run collects.
		if prev != nil {
			<-prev.done
		}
		m.run(runCtx, sess)
	}()
	return sess.ID, nil
}

// Cancel stops an in-flight scan at its next checkpoint.
func (m *Manager) Cancel(sessionID string) error {
	sess, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	if sess.phaseNow().Terminal() {
		return nil
	}
	sess.cancel()
	return nil
}

// Get looks up a session by ID.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Latest returns the most recently started session, if any.
func (m *Manager) Latest() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[m.activeID]
	return sess, ok
}

// evictLocked drops terminal sessions older than the retention window.
func (m *Manager) evictLocked() {
	retention := m.cfg.SessionRetention()
	for id, sess := range m.sessions {
		finishedAt, done := sess.finished()
		if done && time.Since(finishedAt) > retention {
			delete(m.sessions, id)
			if m.activeID == id {
				m.activeID = ""
			}
		}
	}
}

type backendPoll struct {
	report  BackendReport
	records []backend.TorrentRecord
}

func (m *Manager) run(ctx context.Context, sess *Session) {
	start := time.Now()

	backends := m.cfg.EnabledBackends()
	polls := make([]backendPoll, len(backends))
	inventories := make([]*scanner.Inventory, len(m.cfg.ScopeRoots))

	g, gctx := errgroup.WithContext(ctx)

	for i, bcfg := range backends {
		g.Go(func() error {
			polls[i] = m.pollBackend(gctx, sess, bcfg)
			// Backend failures degrade coverage, never the whole run.
			// Cancellation is the one exception and ends the session.
			return gctx.Err()
		})
	}

	for i, root := range m.cfg.ScopeRoots {
		g.Go(func() error {
			// Each root reports a monotonic count; feed the shared
			// counter deltas so it only ever increases.
			var reported int64
			inv, err := m.scanner.Scan(gctx, root, func(n int64) {
				sess.entriesScanned.Add(n - reported)
				reported = n
			})
			if err != nil {
				return fmt.Errorf("scan %s: %w", root, err)
			}
			inventories[i] = inv
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			sess.fail(PhaseCancelled, context.Canceled)
			log.Info().Str("sessionID", sess.ID).Msg("scan cancelled")
		} else {
			sess.fail(PhaseFailed, err)
			log.Error().Err(err).Str("sessionID", sess.ID).Msg("scan failed")
		}
		m.notifyDone(sess, nil)
		return
	}

	sess.setPhase(PhaseReconciling)

	inv := mergeInventories(inventories)
	refs := reconcile.NewReferenceSet()
	finder := relations.NewFinder()
	var allReports []health.Report

	for _, poll := range polls {
		if !poll.report.OK {
			continue
		}
		for _, rec := range poll.records {
			for _, f := range rec.Files {
				refs.Add(f.Path, rec.ID, f.Size)
			}
		}
		finder.Index(poll.report.Name, poll.records)
	}

	result := reconcile.Reconcile(inv, refs, m.cfg.ScopeRoots)

	m.touchActivity(polls)
	for _, poll := range polls {
		if !poll.report.OK {
			continue
		}
		reports := health.BuildReports(poll.report.Name, poll.records,
			result.RunawaySet(), m.activitySnapshot(poll.report.Name), m.cfg.StallGrace())
		allReports = append(allReports, reports...)
	}

	out := &Outcome{
		Result:    result,
		Health:    allReports,
		Backends:  reportsOf(polls),
		Skipped:   inv.Skipped,
		Duration:  time.Since(start),
		inventory: inv,
		finder:    finder,
	}
	sess.outcome.Store(out)
	sess.setPhase(PhaseCompleted)

	log.Info().
		Str("sessionID", sess.ID).
		Int("orphans", len(result.Orphans)).
		Int("runaways", len(result.Runaways)).
		Dur("elapsed", out.Duration).
		Msg("scan completed")

	if m.recorder != nil {
		finishedAt, _ := sess.FinishedAt()
		summary := RunSummary{
			SessionID:    sess.ID,
			StartedAt:    sess.StartedAt,
			FinishedAt:   finishedAt,
			Phase:        PhaseCompleted,
			OrphanCount:  len(result.Orphans),
			RunawayCount: len(result.Runaways),
			OrphanBytes:  result.OrphanBytes,
			Skipped:      inv.Skipped,
			Duration:     out.Duration,
			Backends:     out.Backends,
		}
		if err := m.recorder.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn().Err(err).Str("sessionID", sess.ID).Msg("failed to persist scan history")
		}
	}
	m.notifyDone(sess, out)
}

// pollBackend connects, lists torrents and translates every reported path
// into the internal path space. Translation happens exactly once, here.
func (m *Manager) pollBackend(ctx context.Context, sess *Session, cfg domain.BackendConfig) backendPoll {
	poll := backendPoll{report: BackendReport{Name: cfg.Name}}

	adapter, err := m.factory(cfg)
	if err != nil {
		poll.report.Error = err.Error()
		return poll
	}

	if err := adapter.Connect(ctx); err != nil {
		poll.report.Error = err.Error()
		log.Warn().Err(err).Str("backend", cfg.Name).Msg("backend unreachable, degrading scan coverage")
		return poll
	}

	records, err := adapter.ListTorrents(ctx)
	if err != nil {
		poll.report.Error = err.Error()
		log.Warn().Err(err).Str("backend", cfg.Name).Msg("backend poll failed, degrading scan coverage")
		return poll
	}

	translator := pathmap.New(cfg.PathIn, cfg.PathOut)
	for i := range records {
		for j, f := range records[i].Files {
			internal, err := translator.ToInternal(f.Path)
			if err != nil {
				poll.report.Error = fmt.Sprintf("path translation: %v", err)
				log.Error().Err(err).Str("backend", cfg.Name).Str("path", f.Path).
					Msg("client path outside configured pathIn prefix")
				return poll
			}
			records[i].Files[j].Path = internal
		}
		sess.torrentsPolled.Add(1)
	}

	poll.report.OK = true
	poll.report.Torrents = len(records)
	poll.records = records
	return poll
}

// touchActivity refreshes the last-seen-transferring timestamps used by
// the stall classifier. First sightings start their grace window now.
func (m *Manager) touchActivity(polls []backendPoll) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, poll := range polls {
		for _, rec := range poll.records {
			key := poll.report.Name + "/" + rec.ID
			if _, seen := m.lastActive[key]; !seen || rec.DownloadRate > 0 || rec.UploadRate > 0 {
				m.lastActive[key] = now
			}
		}
	}
}

func (m *Manager) activitySnapshot(backendName string) map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := backendName + "/"
	out := make(map[string]time.Time)
	for key, at := range m.lastActive {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = at
		}
	}
	return out
}

func (m *Manager) notifyDone(sess *Session, out *Outcome) {
	if m.onScanDone != nil {
		m.onScanDone(sess, out)
	}
}

func reportsOf(polls []backendPoll) []BackendReport {
	reports := make([]BackendReport, 0, len(polls))
	for _, poll := range polls {
		reports = append(reports, poll.report)
	}
	return reports
}

func mergeInventories(inventories []*scanner.Inventory) *scanner.Inventory {
	merged := scanner.NewInventory()
	for _, inv := range inventories {
		if inv == nil {
			continue
		}
		for key, entry := range inv.Entries() {
			merged.Entries()[key] = entry
		}
		merged.Skipped += inv.Skipped
	}
	return merged
}
