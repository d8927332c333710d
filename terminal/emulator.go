// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

// Emulator is the upstream producer of screen mutations. It parses the
// PTY byte stream; the replication engine only consumes what it
// reports. The mutation channel is closed when the stream ends.
type Emulator interface {
	// Dimensions returns the current screen size.
	Dimensions() (cols, rows int)

	// Mutations delivers screen-relative changes in the order the
	// emulator made them.
	Mutations() <-chan Mutation
}

// MutationKind selects the meaningful fields of a Mutation.
type MutationKind uint8

const (
	// MutateCells writes Cells on screen line Line starting at Col.
	MutateCells MutationKind = iota + 1

	// MutateLine replaces screen line Line with Cells.
	MutateLine

	// MutateClear blanks Height lines by Width columns from
	// (Line, Col).
	MutateClear

	// MutateScroll moves the screen up by Lines lines; the lines that
	// leave the top become scrollback and blank lines appear at the
	// bottom.
	MutateScroll

	// MutateCursor moves the cursor to (Line, Col).
	MutateCursor

	// MutateStyle defines Style.
	MutateStyle

	// MutateResize changes the screen to Width columns by Height
	// lines.
	MutateResize
)

// Mutation is one screen-relative change reported by an Emulator.
// Line is a screen line index, 0 at the top of the visible screen.
type Mutation struct {
	Kind    MutationKind
	Line    int
	Col     int
	Width   int
	Height  int
	Lines   int
	Cells   []Cell
	Style   Style
	Visible bool
}
