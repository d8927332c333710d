// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the frames exchanged between a termsync
// host and its viewers.
//
// Every frame travels inside an [Envelope] carrying the protocol
// version and the frame kind; the body is the CBOR encoding of the
// frame struct. [Decode] matches the kind exhaustively and returns
// [ErrProtocolVersionMismatch] for a kind it does not know or a
// version newer than [Version]. Receivers drop and count such frames;
// they never tear down the connection over one.
//
// Frame flow, host to viewer:
//
//   - [Hello] once, then [Grid] whenever the live dimensions change.
//   - [Snapshot] chunks followed by one [SnapshotComplete] after
//     connect and after any forced resnapshot.
//   - [DeltaBatch] frames carrying live mutations, including Trim
//     eviction notices.
//   - [HistoryBackfill] chunks answering [RequestBackfill].
//   - [State] and [Heartbeat] on the lossy path for versioned resync.
//   - [Shutdown] before a deliberate close.
//
// Viewer to host: [Hello], [RequestBackfill], [ResyncRequest], [Ack],
// [Input] and [Shutdown].
package protocol
