// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries encoded protocol frames between a termsync
// host and its viewers.
//
// The replication core sees only the [Channel] interface: Send and
// Receive of whole frames, plus Close. A [Link] pairs the ordered,
// reliable channel every connection has with an optional unordered,
// lossy channel that carries loss-tolerant frames.
//
// Frames are compressed per frame by a [FrameCodec] into a
// self-describing block (one compression tag byte, the uncompressed
// length, the payload), so peers with different compression settings
// interoperate.
//
// Implementations:
//
//   - [StreamChannel] frames blocks over any byte stream with a 5-byte
//     header (type byte, big-endian uint32 length). [DialTCP] and
//     [TCPListener] use it for direct connections.
//   - [WebSocketChannel] sends one block per binary websocket message.
//     It is the relay fallback when peer-to-peer setup fails.
//   - [DataChannel] sends one block per WebRTC data channel message.
//     [DialWebRTC] and [WebRTCListener] negotiate a PeerConnection with
//     an ordered reliable channel and an unordered channel with no
//     retransmits.
//   - [Pipe] connects two in-process channels, optionally dropping
//     frames, for tests.
//
// WebRTC signaling goes through the [Signaler] interface. Every
// negotiation attempt carries a generation number; a [Negotiator]
// discards signals from generations older than the newest one it has
// seen for a peer, so a restarted peer is never answered with state
// from its previous attempt. [MemorySignaler] exchanges signals in
// process; [HTTPSignaler] talks to the [SignalHandler] a host mounts on
// its relay HTTP server.
package transport
