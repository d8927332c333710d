// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/host"
	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/lib/config"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/replicate"
	"github.com/bureau-foundation/termsync/resync"
	"github.com/bureau-foundation/termsync/transport"
)

func newHostConfig(settings *config.Config, logger *slog.Logger, hostMetrics *metrics.Metrics) (host.Config, error) {
	compression, err := codec.ParseCompressionTag(settings.History.Compression)
	if err != nil {
		return host.Config{}, err
	}
	return host.Config{
		History: history.Config{
			Cols:             settings.History.Cols,
			Height:           settings.History.Height,
			SnapshotEvery:    settings.History.SnapshotEvery,
			SnapshotInterval: settings.History.SnapshotInterval,
			MaxRows:          settings.History.MaxRows,
			MaxBytes:         settings.History.MaxBytes,
			MaxSnapshots:     settings.History.MaxSnapshots,
			Compression:      compression,
		},
		Sync: replicate.Config{
			InitialSnapshotRows: settings.Sync.InitialSnapshotRows,
			SnapshotChunkRows:   settings.Sync.SnapshotChunkRows,
			MaxUpdatesPerFrame:  settings.Sync.MaxUpdatesPerFrame,
			BackfillChunkRows:   settings.Sync.BackfillChunkRows,
			MaxBackfillRows:     settings.Sync.MaxBackfillRows,
			MaxQueuedRequests:   settings.Sync.MaxQueuedRequests,
		},
		Resync: resync.SenderConfig{
			MaxChain:   settings.Resync.MaxChain,
			MaxUpdates: settings.Sync.MaxUpdatesPerFrame,
		},
		TickInterval:      settings.Sync.TickInterval,
		HeartbeatInterval: settings.Resync.HeartbeatInterval,
		SendTimeout:       settings.Sync.SendTimeout,
		Logger:            logger,
		Metrics:           hostMetrics,
	}, nil
}

func newFrameCodec(settings config.TransportConfig) (transport.FrameCodec, error) {
	compression, err := codec.ParseCompressionTag(settings.Compression)
	if err != nil {
		return transport.FrameCodec{}, err
	}
	return transport.FrameCodec{Compression: compression, MaxFrameSize: settings.MaxFrameSize}, nil
}
