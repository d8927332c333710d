// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Termsync-host records a terminal's output into a bounded history and
// serves it to any number of viewers.
//
// Output comes either from a command run as a child process:
//
//	termsync-host [flags] -- htop
//
// or from standard input, for output that is already being produced
// elsewhere:
//
//	make 2>&1 | termsync-host [flags]
//
// Viewers connect over TCP (--listen) or, when --relay-listen is set,
// over a websocket at /session on that HTTP address. The same server
// exchanges WebRTC offers at /signal/ for viewers dialing the host's
// peer id, exposes Prometheus metrics at /metrics and renders the
// history as plain text at /debug/view.
//
// Keystrokes from viewers reach the child's standard input. In stdin
// mode there is nowhere to send them and they are discarded.
//
// The host keeps serving after its input ends so late viewers can still
// read the history; it exits on SIGINT or SIGTERM.
package main
