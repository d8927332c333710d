// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history is the host's append-only record of terminal state.
//
// A [Store] keeps the live [terminal.Grid], every delta since the
// oldest retained snapshot, and a list of snapshots ordered by
// sequence. Because row ids only grow, the snapshots' top rows are
// non-decreasing too, and the same list doubles as the row index:
// a binary search on Top finds the latest snapshot that can start a
// replay for any row.
//
// # Concurrency
//
// One goroutine writes (the ingest loop calling Append). Writes hold
// the store lock only long enough to apply a delta to the live grid
// and append to the delta and snapshot slices. Readers hold the read
// lock only to copy slice headers; the slices are append-only and
// eviction reslices rather than overwriting, so a copied header is a
// consistent point-in-time view and replay runs with no lock held.
//
// # Cadence
//
// Snapshots are taken every Config.SnapshotEvery deltas, every
// Config.SnapshotInterval of wall time when something changed, and
// whenever a delta is about to push a row that no snapshot has seen
// out of the live window. The last rule is what guarantees every row
// that was ever on screen can be replayed from some retained snapshot.
//
// # Eviction
//
// When the retained rows, bytes or snapshot count exceed their limits
// the oldest snapshot is dropped together with the deltas leading up to
// its successor. The successor's top row becomes the new floor and a
// [terminal.DeltaTrim] is appended so subscribers learn about it
// through their normal delta stream.
package history
