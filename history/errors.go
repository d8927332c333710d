// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import "errors"

var (
	// ErrNotAvailable means the requested row or sequence predates
	// the retained history. It is permanent.
	ErrNotAvailable = errors.New("history: not available")

	// ErrOutOfRange means the requested row or sequence is beyond
	// anything the store has produced.
	ErrOutOfRange = errors.New("history: out of range")

	// ErrCompacted means the deltas after the requested sequence have
	// been evicted; the caller needs a snapshot instead.
	ErrCompacted = errors.New("history: deltas compacted")

	// ErrCorruptSnapshot means a snapshot payload failed its digest
	// check or could not be decoded.
	ErrCorruptSnapshot = errors.New("history: corrupt snapshot")
)
