// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus instruments for the host and
// viewer sides of a session.
//
// Components hold a *Metrics and call its recording methods. Every
// method is safe on a nil receiver so tests and embedders that do not
// care about metrics pass nil.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "termsync"

// Metrics holds every instrument. Create it once per process with New.
type Metrics struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	backfillRequests *prometheus.CounterVec
	backfillChunks   *prometheus.CounterVec
	backfillTimeouts prometheus.Counter
	resyncRequests   prometheus.Counter
	resyncAnswers    *prometheus.CounterVec
	snapshots        *prometheus.CounterVec
	evictedRows      prometheus.Counter
	historyRows      prometheus.Gauge
	historyBytes     prometheus.Gauge
	subscribers      prometheus.Gauge
	missingRows      prometheus.Counter
}

// New creates the instruments and registers them with registerer.
// Panics if registration fails, which only happens when two Metrics
// share a registry.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to a transport channel, by frame kind.",
		}, []string{"kind"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from a transport channel, by frame kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded without being applied, by reason.",
		}, []string{"reason"}),
		backfillRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_requests_total",
			Help:      "Backfill requests seen by the host, by outcome.",
		}, []string{"outcome"}),
		backfillChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_chunks_total",
			Help:      "Backfill reply chunks, by availability.",
		}, []string{"availability"}),
		backfillTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backfill_timeouts_total",
			Help:      "Backfill requests a viewer gave up waiting for.",
		}),
		resyncRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_requests_total",
			Help:      "Resync requests issued after a detected version gap.",
		}),
		resyncAnswers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resync_answers_total",
			Help:      "Resync answers sent by the host, by form (chain or snapshot).",
		}, []string{"form"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_snapshots_total",
			Help:      "Snapshots taken by the history store, by trigger.",
		}, []string{"trigger"}),
		evictedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evicted_rows_total",
			Help:      "Rows dropped below the history floor.",
		}),
		historyRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_rows",
			Help:      "Rows between the history floor and the tail.",
		}),
		historyBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_bytes",
			Help:      "Estimated bytes retained by snapshots and deltas.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected subscribers.",
		}),
		missingRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replica_missing_rows_total",
			Help:      "Rows a viewer marked permanently unavailable.",
		}),
	}
	registerer.MustRegister(
		m.framesSent, m.framesReceived, m.framesDropped,
		m.backfillRequests, m.backfillChunks, m.backfillTimeouts,
		m.resyncRequests, m.resyncAnswers,
		m.snapshots, m.evictedRows, m.historyRows, m.historyBytes,
		m.subscribers, m.missingRows,
	)
	return m
}

// FrameSent counts one outgoing frame.
func (m *Metrics) FrameSent(kind string) {
	if m != nil {
		m.framesSent.WithLabelValues(kind).Inc()
	}
}

// FrameReceived counts one decoded incoming frame.
func (m *Metrics) FrameReceived(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

// FrameDropped counts one discarded frame.
func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

// BackfillRequest counts one incoming backfill request.
func (m *Metrics) BackfillRequest(outcome string) {
	if m != nil {
		m.backfillRequests.WithLabelValues(outcome).Inc()
	}
}

// BackfillChunk counts one backfill reply chunk.
func (m *Metrics) BackfillChunk(availability string) {
	if m != nil {
		m.backfillChunks.WithLabelValues(availability).Inc()
	}
}

// BackfillTimedOut counts one viewer-side backfill timeout.
func (m *Metrics) BackfillTimedOut() {
	if m != nil {
		m.backfillTimeouts.Inc()
	}
}

// ResyncRequested counts one resync request.
func (m *Metrics) ResyncRequested() {
	if m != nil {
		m.resyncRequests.Inc()
	}
}

// ResyncAnswered counts one resync answer.
func (m *Metrics) ResyncAnswered(form string) {
	if m != nil {
		m.resyncAnswers.WithLabelValues(form).Inc()
	}
}

// SnapshotTaken counts one snapshot.
func (m *Metrics) SnapshotTaken(trigger string) {
	if m != nil {
		m.snapshots.WithLabelValues(trigger).Inc()
	}
}

// RowsEvicted counts rows that fell below the history floor.
func (m *Metrics) RowsEvicted(rows int) {
	if m != nil && rows > 0 {
		m.evictedRows.Add(float64(rows))
	}
}

// SetHistorySize records the retained history size.
func (m *Metrics) SetHistorySize(rows int, bytes int64) {
	if m != nil {
		m.historyRows.Set(float64(rows))
		m.historyBytes.Set(float64(bytes))
	}
}

// SubscriberConnected increments the subscriber gauge.
func (m *Metrics) SubscriberConnected() {
	if m != nil {
		m.subscribers.Inc()
	}
}

// SubscriberDisconnected decrements the subscriber gauge.
func (m *Metrics) SubscriberDisconnected() {
	if m != nil {
		m.subscribers.Dec()
	}
}

// RowsMissing counts rows a viewer marked permanently unavailable.
func (m *Metrics) RowsMissing(rows int) {
	if m != nil && rows > 0 {
		m.missingRows.Add(float64(rows))
	}
}
