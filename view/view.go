// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package view projects the history store into a fixed-height
// viewport. A Realtime view is anchored at the tail and follows new
// output; a Historical view is anchored at a requested top row and is
// reconstructed from snapshots, never from the live grid.
package view

import (
	"fmt"

	"github.com/bureau-foundation/termsync/terminal"
)

// Source is the part of the history store a projection reads.
// *history.Store implements it.
type Source interface {
	Live() *terminal.Grid
	GetWindow(row terminal.RowID, rows int) (*terminal.Grid, error)
}

// Mode distinguishes tail-anchored from top-anchored viewports.
type Mode int

const (
	ModeRealtime Mode = iota
	ModeHistorical
)

func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeHistorical:
		return "historical"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Viewport is a contiguous run of rows plus the cursor. Rows may be
// shorter than the requested height: a projection never pads.
type Viewport struct {
	Mode Mode
	// Top is the id of Rows[0], or the requested anchor when Rows is
	// empty.
	Top  terminal.RowID
	Rows []terminal.Row
	Cols int
	// Cursor is the grid cursor. Visible is false when the cursor's
	// row is not among Rows in a historical view.
	Cursor terminal.Cursor
	// Seq is the sequence the projected grid reflects.
	Seq terminal.Seq
}

// Bottom returns one past the last row in the viewport.
func (v Viewport) Bottom() terminal.RowID { return v.Top + terminal.RowID(len(v.Rows)) }

// Realtime returns the trailing height rows of the live grid. The
// cursor is reported at its true position.
func Realtime(source Source, height int) Viewport {
	grid := source.Live()
	height = max(height, 1)
	start := grid.Top()
	if grid.Len() > height {
		start = grid.Bottom() - terminal.RowID(height)
	}
	return Viewport{
		Mode:   ModeRealtime,
		Top:    start,
		Rows:   grid.Rows(start, height),
		Cols:   grid.Cols(),
		Cursor: grid.Cursor(),
		Seq:    grid.Seq(),
	}
}

// Historical returns up to height rows starting at top, taken from a
// window that was live while top was on screen. Only when top is close
// to the end of retained data does the slice start earlier so that it
// still holds height rows where possible; it always contains top. Errors
// from the source, including history.ErrNotAvailable, are returned
// unchanged in meaning.
func Historical(source Source, top terminal.RowID, height int) (Viewport, error) {
	grid, err := source.GetWindow(top, max(height, 1))
	if err != nil {
		return Viewport{}, fmt.Errorf("historical view at row %d: %w", top, err)
	}
	height = max(height, 1)

	start := top
	if end := grid.Bottom(); start+terminal.RowID(height) > end {
		start = max(grid.Top(), end-min(end, terminal.RowID(height)))
	}
	rows := grid.Rows(start, height)

	cursor := grid.Cursor()
	end := start + terminal.RowID(len(rows))
	if cursor.Row < start || cursor.Row >= end {
		cursor.Visible = false
	}
	return Viewport{
		Mode:   ModeHistorical,
		Top:    start,
		Rows:   rows,
		Cols:   grid.Cols(),
		Cursor: cursor,
		Seq:    grid.Seq(),
	}, nil
}
