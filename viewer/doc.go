// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package viewer runs the consuming side of a termsync session. A
// [Client] owns a [replica.Cache] that outlives individual links: when
// a link drops, [Client.RunWithRedial] dials again and the new
// subscription's snapshot merges into what is already cached.
//
// Per link, one goroutine per channel applies host frames to the cache
// (and, for lossy links, to a [resync.Receiver]) while a pump sends
// backfill requests, retries, acknowledgements and keystrokes.
package viewer
