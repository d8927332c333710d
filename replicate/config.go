// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replicate

import (
	"log/slog"

	"github.com/bureau-foundation/termsync/lib/metrics"
)

// Config holds the per-subscriber scheduling limits. Zero values take
// the defaults listed on each field.
type Config struct {
	// InitialSnapshotRows is how many of the newest rows a viewer
	// receives on connect. Default 500.
	InitialSnapshotRows int

	// SnapshotChunkRows bounds the rows in one Snapshot frame.
	// Default 64.
	SnapshotChunkRows int

	// MaxUpdatesPerFrame bounds the deltas in one DeltaBatch frame.
	// Default 64.
	MaxUpdatesPerFrame int

	// BackfillChunkRows bounds the rows in one HistoryBackfill
	// chunk. Default 64.
	BackfillChunkRows int

	// MaxBackfillRows caps the MaxRows of a single request.
	// Default 256.
	MaxBackfillRows int

	// MaxQueuedRequests bounds outstanding backfill requests per
	// subscriber; requests beyond it are answered TransientEmpty.
	// Default 32.
	MaxQueuedRequests int

	// RequestMemory is how many recent request ids are remembered
	// for duplicate suppression. Default 256.
	RequestMemory int

	// LossyLive leaves live deltas to the resync sender on the lossy
	// channel. The subscriber then sends only the grid, snapshots and
	// backfill.
	LossyLive bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.InitialSnapshotRows <= 0 {
		c.InitialSnapshotRows = 500
	}
	if c.SnapshotChunkRows <= 0 {
		c.SnapshotChunkRows = 64
	}
	if c.MaxUpdatesPerFrame <= 0 {
		c.MaxUpdatesPerFrame = 64
	}
	if c.BackfillChunkRows <= 0 {
		c.BackfillChunkRows = 64
	}
	if c.MaxBackfillRows <= 0 {
		c.MaxBackfillRows = 256
	}
	if c.MaxQueuedRequests <= 0 {
		c.MaxQueuedRequests = 32
	}
	if c.RequestMemory <= 0 {
		c.RequestMemory = 256
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
