// Copyright (c) 2026, the orphanage contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes prometheus metrics over the scan session state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/thenunner/orphanage/internal/session"
)

// Manager owns the registry and the counters fed by scan lifecycle hooks.
type Manager struct {
	registry *prometheus.Registry

	scansTotal     *prometheus.CounterVec
	reclaimedBytes prometheus.Counter
}

func NewManager(sessions *session.Manager) *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orphanage_scans_total",
			Help: "Number of finished scans by terminal phase",
		}, []string{"phase"}),
		reclaimedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orphanage_reclaimed_bytes_total",
			Help: "Bytes reclaimed by executed deletion plans",
		}),
	}
	registry.MustRegister(m.scansTotal, m.reclaimedBytes)
	registry.MustRegister(NewScanCollector(sessions))

	log.Debug().Msg("metrics registry initialized")
	return m
}

func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// ScanFinished records a scan reaching a terminal phase.
func (m *Manager) ScanFinished(phase session.Phase) {
	m.scansTotal.WithLabelValues(string(phase)).Inc()
}

// BytesReclaimed adds to the reclaimed-space counter after a deletion
// plan executes.
func (m *Manager) BytesReclaimed(n int64) {
	if n > 0 {
		m.reclaimedBytes.Add(float64(n))
	}
}

// ScanCollector reports gauges derived from the latest completed scan.
type ScanCollector struct {
	sessions *session.Manager

	orphansDesc     *prometheus.Desc
	orphanBytesDesc *prometheus.Desc
	runawaysDesc    *prometheus.Desc
	backendUpDesc   *prometheus.Desc
	durationDesc    *prometheus.Desc
	healthDesc      *prometheus.Desc
}

func NewScanCollector(sessions *session.Manager) *ScanCollector {
	return &ScanCollector{
		sessions: sessions,
		orphansDesc: prometheus.NewDesc(
			"orphanage_orphan_files",
			"Orphan files found by the latest completed scan",
			nil, nil,
		),
		orphanBytesDesc: prometheus.NewDesc(
			"orphanage_orphan_bytes",
			"Total size of orphan files found by the latest completed scan",
			nil, nil,
		),
		runawaysDesc: prometheus.NewDesc(
			"orphanage_runaway_files",
			"Runaway references found by the latest completed scan",
			nil, nil,
		),
		backendUpDesc: prometheus.NewDesc(
			"orphanage_backend_up",
			"Whether a backend contributed to the latest completed scan (1=up, 0=down)",
			[]string{"backend"}, nil,
		),
		durationDesc: prometheus.NewDesc(
			"orphanage_scan_duration_seconds",
			"Wall-clock duration of the latest completed scan",
			nil, nil,
		),
		healthDesc: prometheus.NewDesc(
			"orphanage_torrents_by_health",
			"Torrents by health state in the latest completed scan",
			[]string{"state"}, nil,
		),
	}
}

func (c *ScanCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.orphansDesc
	ch <- c.orphanBytesDesc
	ch <- c.runawaysDesc
	ch <- c.backendUpDesc
	ch <- c.durationDesc
	ch <- c.healthDesc
}

func (c *ScanCollector) Collect(ch chan<- prometheus.Metric) {
	sess, ok := c.sessions.Latest()
	if !ok {
		return
	}
	out, err := sess.Outcome()
	if err != nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(c.orphansDesc, prometheus.GaugeValue, float64(len(out.Result.Orphans)))
	ch <- prometheus.MustNewConstMetric(c.orphanBytesDesc, prometheus.GaugeValue, float64(out.Result.OrphanBytes))
	ch <- prometheus.MustNewConstMetric(c.runawaysDesc, prometheus.GaugeValue, float64(len(out.Result.Runaways)))
	ch <- prometheus.MustNewConstMetric(c.durationDesc, prometheus.GaugeValue, out.Duration.Seconds())

	for _, report := range out.Backends {
		up := 0.0
		if report.OK {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.backendUpDesc, prometheus.GaugeValue, up, report.Name)
	}

	byState := make(map[string]int)
	for _, report := range out.Health {
		byState[string(report.State)]++
	}
	for state, count := range byState {
		ch <- prometheus.MustNewConstMetric(c.healthDesc, prometheus.GaugeValue, float64(count), state)
	}
}
