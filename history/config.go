// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/lib/metrics"
)

// Config parameterizes a Store. Zero values take the defaults listed
// on each field.
type Config struct {
	// Cols and Height are the initial live window dimensions.
	Cols   int
	Height int

	// SnapshotEvery is the number of deltas between cadence
	// snapshots. Default 100.
	SnapshotEvery int

	// SnapshotInterval is the longest time a changed grid goes
	// without a snapshot. Default 5s; negative disables.
	SnapshotInterval time.Duration

	// MaxRows bounds the rows retained between the floor and the
	// tail. Default 10000.
	MaxRows int

	// MaxBytes bounds the estimated memory held by snapshots and
	// deltas. Default 100 MiB.
	MaxBytes int64

	// MaxSnapshots bounds the number of retained snapshots. Zero
	// means no bound beyond MaxRows and MaxBytes.
	MaxSnapshots int

	// Compression is applied to snapshot payloads. Default LZ4.
	Compression codec.CompressionTag

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

const (
	defaultSnapshotEvery    = 100
	defaultSnapshotInterval = 5 * time.Second
	defaultMaxRows          = 10000
	defaultMaxBytes         = 100 << 20

	// maxSnapshotPayload bounds a decoded snapshot. A window of
	// 1000x1000 cells encodes well below it.
	maxSnapshotPayload = 64 << 20
)

func (c Config) withDefaults() Config {
	if c.Cols <= 0 {
		c.Cols = 80
	}
	if c.Height <= 0 {
		c.Height = 24
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = defaultSnapshotEvery
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = defaultSnapshotInterval
	}
	if c.MaxRows <= 0 {
		c.MaxRows = defaultMaxRows
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
