// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package terminal is the row/cell model shared by the host and every
// viewer.
//
// Rows are identified by [RowID], an absolute line number that only
// ever grows: the first line the host sees is row 0 and a row keeps
// its id after it scrolls out of the live screen and after it has been
// evicted from history. Every mutation is a [Delta] carrying a global
// sequence number ([Seq]) assigned by the history store. Each [Cell]
// remembers the sequence of the write that produced it, and a write is
// applied only when its sequence is strictly greater. Applying the same
// set of deltas in any order therefore yields the same [Grid], and
// re-applying a delta is a no-op.
//
// The emulator that parses the PTY byte stream knows nothing about
// row ids. It reports screen-relative [Mutation]s through the
// [Emulator] interface and a [Translator] turns them into deltas
// against absolute rows. The translator is the only code that knows
// where screen line 0 sits in the absolute row space.
package terminal
