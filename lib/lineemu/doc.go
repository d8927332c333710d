// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lineemu is a small terminal emulator for line-oriented
// programs: shells in non-interactive mode, build logs, tails. It
// understands printable text with wrapping, the C0 controls CR, LF, BS
// and HT, SGR styling, cursor positioning and erase-in-line/display.
// Everything else is parsed and dropped.
//
// The emulator keeps no screen buffer. It reports each change as a
// [terminal.Mutation] and leaves row bookkeeping to the consumer.
package lineemu
