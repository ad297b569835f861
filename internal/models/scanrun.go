// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package models holds the persisted record types and their stores.
package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/session"
)

var ErrRunNotFound = errors.New("scan run not found")

// ScanRun is the durable summary of one completed reconciliation.
type ScanRun struct {
	ID             int64                   `json:"id"`
	SessionID      string                  `json:"sessionId"`
	StartedAt      time.Time               `json:"startedAt"`
	FinishedAt     time.Time               `json:"finishedAt"`
	Phase          string                  `json:"phase"`
	OrphanCount    int                     `json:"orphanCount"`
	RunawayCount   int                     `json:"runawayCount"`
	OrphanBytes    int64                   `json:"orphanBytes"`
	SkippedEntries int                     `json:"skippedEntries"`
	DurationMs     int64                   `json:"durationMs"`
	Backends       []session.BackendReport `json:"backends"`
}

// ScanRunStore persists scan summaries. retention caps how many runs are
// kept; zero keeps everything.
type ScanRunStore struct {
	db        *sql.DB
	retention int
}

func NewScanRunStore(db *sql.DB, retention int) *ScanRunStore {
	return &ScanRunStore{db: db, retention: retention}
}

// RecordRun satisfies session.RunRecorder.
func (s *ScanRunStore) RecordRun(ctx context.Context, run session.RunSummary) error {
	finishedAt := run.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	backends, err := json.Marshal(run.Backends)
	if err != nil {
		return fmt.Errorf("marshal backend reports: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (session_id, started_at, finished_at, phase,
			orphan_count, runaway_count, orphan_bytes, skipped_entries, duration_ms, backends)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.SessionID, run.StartedAt, finishedAt, string(run.Phase),
		run.OrphanCount, run.RunawayCount, run.OrphanBytes,
		run.Skipped, run.Duration.Milliseconds(), string(backends),
	)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to prune scan history")
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *ScanRunStore) List(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, started_at, finished_at, phase,
			orphan_count, runaway_count, orphan_bytes, skipped_entries, duration_ms, backends
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by its session ID.
func (s *ScanRunStore) Get(ctx context.Context, sessionID string) (*ScanRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, started_at, finished_at, phase,
			orphan_count, runaway_count, orphan_bytes, skipped_entries, duration_ms, backends
		FROM scan_runs WHERE session_id = ?`, sessionID)

	run, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *ScanRunStore) prune(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scan_runs WHERE id NOT IN (
			SELECT id FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ?
		)`, s.retention)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (ScanRun, error) {
	var run ScanRun
	var backends string
	err := row.Scan(&run.ID, &run.SessionID, &run.StartedAt, &run.FinishedAt, &run.Phase,
		&run.OrphanCount, &run.RunawayCount, &run.OrphanBytes, &run.SkippedEntries,
		&run.DurationMs, &backends)
	if err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(backends), &run.Backends); err != nil {
		return run, fmt.Errorf("decode backend reports: %w", err)
	}
	return run, nil
}
