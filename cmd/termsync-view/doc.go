// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Termsync-view attaches to a termsync host and shows its terminal,
// newest output first, filling in history as it is scrolled to.
//
// The host is reached one of three ways:
//
//	termsync-view --connect host:7420                 # TCP
//	termsync-view --relay ws://host:8420              # websocket through the relay
//	termsync-view --peer termsync-host \
//	    --config viewer.yaml                          # WebRTC, signaled via transport.signal_url
//
// A dropped link is redialed with backoff; rows already received stay
// on screen meanwhile. The session ends when the host exits or on
// ctrl+q.
package main
