// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replicate schedules what one viewer receives from the
// history store.
//
// A [Subscriber] owns the cursor and three lanes for one connection.
// Each [Subscriber.Tick] produces frames in strict priority order:
//
//  1. The delta lane: every delta after the cursor, in batches of at
//     most MaxUpdatesPerFrame. Always drained completely, so live
//     output is never held back by the other lanes.
//  2. The initial-snapshot lane: after connect (or after the delta
//     lane finds its position compacted away) the newest
//     InitialSnapshotRows rows, newest chunk first, then
//     SnapshotComplete. It drains in the tick it starts.
//  3. The backfill lane: at most one HistoryBackfill chunk of at most
//     BackfillChunkRows rows per tick. Outstanding requests are served
//     round-robin, one chunk each in turn.
//
// Subscribers share nothing but the store. The host ticks each one
// from its own goroutine, so a slow viewer stalls only itself.
package replicate
