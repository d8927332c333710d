// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resync carries live updates over a channel that may drop or
// reorder frames.
//
// Every [protocol.State] has a Version, the host sequence it brings
// the viewer to, and a BaseVersion it applies on top of. The
// [Receiver] applies a state whose base it has already reached,
// buffers one whose base is ahead and asks for the gap with a single
// ResyncRequest. The [Sender] answers with the chain of deltas between
// the two versions when the store still has it and it is short enough,
// and otherwise with a snapshot of the live window that replaces
// whatever the receiver had buffered.
//
// Versions are history sequence numbers, so a bridging chain is simply
// DeltasSince(LastVersion). Updates are per-cell sequence gated, so
// applying one twice is harmless.
package resync
