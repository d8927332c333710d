// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

// State is the serializable form of a Grid. Snapshots store it and the
// resync snapshot frame carries it.
type State struct {
	Cols      int     `cbor:"c"`
	Height    int     `cbor:"h"`
	Top       RowID   `cbor:"t"`
	Rows      []Row   `cbor:"r,omitempty"`
	Cursor    Cursor  `cbor:"u"`
	CursorSeq Seq     `cbor:"us,omitempty"`
	Styles    []Style `cbor:"s,omitempty"`
	Floor     RowID   `cbor:"f,omitempty"`
	Seq       Seq     `cbor:"q"`
}

// State captures the grid. The returned value shares nothing with g.
func (g *Grid) State() State {
	return State{
		Cols:      g.cols,
		Height:    g.height,
		Top:       g.top,
		Rows:      g.Rows(g.top, len(g.rows)),
		Cursor:    g.cursor,
		CursorSeq: g.cursorSeq,
		Styles:    g.Styles(),
		Floor:     g.floor,
		Seq:       g.seq,
	}
}

// GridFromState rebuilds a Grid from a captured State. Rows must be
// contiguous starting at Top.
func GridFromState(state State) *Grid {
	grid := NewGrid(state.Cols, state.Height)
	grid.top = state.Top
	grid.rows = make([]Row, 0, len(state.Rows))
	for i, row := range state.Rows {
		row = row.Clone()
		row.ID = state.Top + RowID(i)
		row.Cells = resizeCells(row.Cells, grid.cols)
		grid.rows = append(grid.rows, row)
	}
	grid.trim(nil)
	grid.cursor = state.Cursor
	grid.cursorSeq = state.CursorSeq
	for _, style := range state.Styles {
		grid.styles[style.ID] = style
	}
	grid.floor = state.Floor
	grid.seq = state.Seq
	return grid
}
