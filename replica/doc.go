// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replica is the viewer's sparse copy of a host's rows.
//
// A [Cache] holds a slot per referenced row. A slot starts Pending
// when the viewport or a request first refers to it, becomes Loaded
// when any content with a higher sequence than what is cached arrives
// (delta, snapshot chunk or backfill reply), and becomes Missing only
// when the host says the row is permanently gone: a
// PermanentlyUnavailable reply or a Trim covering it. A TransientEmpty
// reply never marks a row Missing. Every write is gated on per-cell
// sequence numbers, so the order frames arrive in does not matter.
//
// Gap filling runs independently of tail following. [Cache.NextRequest]
// scans the viewport plus a lookahead window above it for the lowest
// contiguous unresolved span and returns a backfill request for it,
// paced by a token bucket and a cap on requests in flight.
// [Cache.Expire] retries requests the host has not answered and gives
// up on a span after a fixed number of attempts.
//
// The known base row is the lowest row the viewer believes the host
// still retains. It starts at the host's floor and only moves up, on a
// Trim or a PermanentlyUnavailable reply. Content arriving for a row
// below it is kept, and the row becomes a re-anchor point from which
// gap detection rescans.
package replica
