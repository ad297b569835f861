// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package health classifies per-torrent health from backend state and the
// reconciliation result.
package health

import (
	"sort"
	"time"

	"github.com/thenunner/orphanage/internal/backend"
	"github.com/thenunner/orphanage/internal/pathmap"
)

// State is a torrent health classification, ordered by severity.
type State string

const (
	StateOK           State = "ok"
	StateStalled      State = "stalled"
	StateTrackerError State = "tracker-error"
	StateFileMissing  State = "file-missing"
)

var severity = map[State]int{
	StateOK:           0,
	StateStalled:      1,
	StateTrackerError: 2,
	StateFileMissing:  3,
}

// Report is one torrent's classification for one scan.
type Report struct {
	TorrentID string `json:"torrentId"`
	Backend   string `json:"backend"`
	Name      string `json:"name"`
	State     State  `json:"state"`
	Detail    string `json:"detail,omitempty"`
	Severity  int    `json:"severity"`
}

// Classify derives the health state of one torrent. runaways holds the
// normalized paths flagged by reconciliation; stalledSince records when the
// torrent was last seen transferring, zero time meaning unknown.
func Classify(rec backend.TorrentRecord, runaways map[string]struct{}, stalledSince time.Time, grace time.Duration) (State, string) {
	state, detail := StateOK, ""

	promote := func(s State, d string) {
		if severity[s] > severity[state] {
			state, detail = s, d
		}
	}

	if rec.DownloadRate == 0 && rec.UploadRate == 0 && rec.Active() &&
		!stalledSince.IsZero() && time.Since(stalledSince) > grace {
		promote(StateStalled, "no transfer activity beyond grace period")
	}

	if rec.TrackerMessage != "" && !rec.Active() {
		promote(StateTrackerError, rec.TrackerMessage)
	}

	for _, f := range rec.Files {
		if _, runaway := runaways[pathmap.Normalize(f.Path)]; runaway {
			promote(StateFileMissing, f.Path)
			break
		}
	}

	return state, detail
}

// BuildReports classifies every torrent in a poll and returns reports
// sorted worst-first, ties broken by name.
func BuildReports(backendName string, records []backend.TorrentRecord, runaways map[string]struct{}, stalledSince map[string]time.Time, grace time.Duration) []Report {
	reports := make([]Report, 0, len(records))
	for _, rec := range records {
		state, detail := Classify(rec, runaways, stalledSince[rec.ID], grace)
		reports = append(reports, Report{
			TorrentID: rec.ID,
			Backend:   backendName,
			Name:      rec.Name,
			State:     state,
			Detail:    detail,
			Severity:  severity[state],
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Severity != reports[j].Severity {
			return reports[i].Severity > reports[j].Severity
		}
		return reports[i].Name < reports[j].Name
	})
	return reports
}
