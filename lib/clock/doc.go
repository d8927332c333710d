// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every timer in termsync.
//
// Snapshot intervals, backfill request timeouts, heartbeat and
// scheduler tick loops all read time through a Clock so the
// replication tests can step time deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	cache := replica.New(replica.Config{Clock: c, ...})
//	c.Advance(6 * time.Second) // expire an outstanding backfill
//
// Production code uses Real().
package clock
