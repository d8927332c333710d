// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package host runs the producing side of a termsync session.
//
// [Host.Ingest] drains a [terminal.Emulator], translates its
// screen-relative mutations into row deltas and appends them to the
// history store. [Host.Serve] accepts viewer links from any
// [transport.Listener] and runs one session per link:
//
//   - a receive loop per channel decodes viewer frames (Hello,
//     RequestBackfill, Ack, ResyncRequest, Input, Shutdown)
//   - a pump goroutine owns the subscriber's [replicate.Subscriber]
//     and, for lossy viewers, its [resync.Sender], waking on store
//     changes, inbound frames and a tick
//
// The pump is the only goroutine that sends, so frames on the reliable
// channel leave in the order the subscriber produced them. A viewer
// that cannot accept a frame within the send timeout is disconnected as
// a slow consumer.
//
// [Relay] mounts the HTTP surface: websocket sessions, WebRTC
// signaling, Prometheus metrics and a debug projection of the store.
package host
