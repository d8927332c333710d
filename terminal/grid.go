// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"slices"
	"sort"
)

// Grid is the live window: at most Height rows ending at the newest
// row written. Rows enter at the bottom when a delta writes past the
// current bottom and leave at the top when the window overflows; the
// top never moves backward.
//
// A Grid is not safe for concurrent use. The history store owns the
// authoritative one and hands out clones.
type Grid struct {
	cols   int
	height int

	top  RowID
	rows []Row // rows[i].ID == top+i

	cursor    Cursor
	cursorSeq Seq
	styles    map[StyleID]Style
	floor     RowID
	seq       Seq
}

// NewGrid returns an empty grid. The first row written becomes the
// first row of the window.
func NewGrid(cols, height int) *Grid {
	return &Grid{
		cols:   max(cols, 1),
		height: max(height, 1),
		styles: make(map[StyleID]Style),
	}
}

// Cols returns the grid width.
func (g *Grid) Cols() int { return g.cols }

// Height returns the window height in rows.
func (g *Grid) Height() int { return g.height }

// Top returns the id of the first row in the window.
func (g *Grid) Top() RowID { return g.top }

// Bottom returns one past the id of the last row in the window. It is
// also the id the next new row will receive.
func (g *Grid) Bottom() RowID { return g.top + RowID(len(g.rows)) }

// Len returns the number of rows currently in the window.
func (g *Grid) Len() int { return len(g.rows) }

// Seq returns the highest sequence applied.
func (g *Grid) Seq() Seq { return g.seq }

// Floor returns the lowest row history still retains, as announced by
// the last Trim applied.
func (g *Grid) Floor() RowID { return g.floor }

// Cursor returns the cursor position.
func (g *Grid) Cursor() Cursor { return g.cursor }

// Contains reports whether row is inside the window.
func (g *Grid) Contains(row RowID) bool {
	return row >= g.top && row < g.Bottom()
}

// Row returns a copy of row, or false when it is outside the window.
func (g *Grid) Row(row RowID) (Row, bool) {
	if !g.Contains(row) {
		return Row{}, false
	}
	return g.rows[row-g.top].Clone(), true
}

// Rows returns copies of up to count rows starting at start, clipped
// to the window.
func (g *Grid) Rows(start RowID, count int) []Row {
	end := min(start+RowID(max(count, 0)), g.Bottom())
	start = max(start, g.top)
	if end <= start {
		return nil
	}
	out := make([]Row, 0, end-start)
	for id := start; id < end; id++ {
		out = append(out, g.rows[id-g.top].Clone())
	}
	return out
}

// Styles returns the style table sorted by id.
func (g *Grid) Styles() []Style {
	out := make([]Style, 0, len(g.styles))
	for _, style := range g.styles {
		out = append(out, style)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	clone := *g
	clone.rows = make([]Row, len(g.rows))
	for i, row := range g.rows {
		clone.rows[i] = row.Clone()
	}
	clone.styles = make(map[StyleID]Style, len(g.styles))
	for id, style := range g.styles {
		clone.styles[id] = style
	}
	return &clone
}

// Apply applies d and reports whether the grid changed.
func (g *Grid) Apply(d Delta) bool {
	return g.ApplyEvicting(d, nil)
}

// ApplyEvicting applies d like Apply and calls evicted with each row
// that leaves the top of the window as a result, oldest first.
func (g *Grid) ApplyEvicting(d Delta, evicted func(Row)) bool {
	changed := g.apply(d, evicted)
	if d.Seq > g.seq {
		g.seq = d.Seq
	}
	return changed
}

func (g *Grid) apply(d Delta, evicted func(Row)) bool {
	switch d.Kind {
	case DeltaCell, DeltaSegment, DeltaRow, DeltaRect:
		changed := false
		d.Writes(g.cols, func(row RowID, col int, cells []Cell) {
			if g.write(row, col, cells, d.Seq, evicted) {
				changed = true
			}
		})
		return changed
	case DeltaTrim:
		if d.Row <= g.floor {
			return false
		}
		g.floor = d.Row
		return true
	case DeltaStyle:
		if d.Style.ID == 0 || g.styles[d.Style.ID] == d.Style {
			return false
		}
		g.styles[d.Style.ID] = d.Style
		return true
	case DeltaCursor:
		if d.Seq <= g.cursorSeq {
			return false
		}
		g.cursor = d.Cursor
		g.cursorSeq = d.Seq
		return true
	case DeltaResize:
		return g.resize(d.Width, d.Height, evicted)
	default:
		return false
	}
}

// write places cells at (row, col) subject to the per-cell sequence
// check, extending the window when row is past the bottom.
func (g *Grid) write(row RowID, col int, cells []Cell, seq Seq, evicted func(Row)) bool {
	if row < g.top || col < 0 || col >= g.cols {
		return false
	}
	if row >= g.Bottom() {
		g.extend(row, evicted)
	}
	return g.rows[row-g.top].Write(col, cells, seq)
}

// extend appends blank rows through row and scrolls the window so it
// holds at most height rows.
func (g *Grid) extend(row RowID, evicted func(Row)) {
	for id := g.Bottom(); id <= row; id++ {
		g.rows = append(g.rows, blankRow(id, g.cols))
	}
	g.trim(evicted)
}

func (g *Grid) trim(evicted func(Row)) {
	overflow := len(g.rows) - g.height
	if overflow <= 0 {
		return
	}
	if evicted != nil {
		for _, row := range g.rows[:overflow] {
			evicted(row)
		}
	}
	g.rows = slices.Clone(g.rows[overflow:])
	g.top += RowID(overflow)
}

func (g *Grid) resize(cols, height int, evicted func(Row)) bool {
	if cols <= 0 || height <= 0 || (cols == g.cols && height == g.height) {
		return false
	}
	if cols != g.cols {
		for i := range g.rows {
			g.rows[i].Cells = resizeCells(g.rows[i].Cells, cols)
		}
		g.cols = cols
	}
	g.height = height
	g.trim(evicted)
	return true
}

func resizeCells(cells []Cell, cols int) []Cell {
	if len(cells) >= cols {
		return cells[:cols:cols]
	}
	out := make([]Cell, cols)
	copy(out, cells)
	for i := len(cells); i < cols; i++ {
		out[i] = Blank
	}
	return out
}

func blankRow(id RowID, cols int) Row {
	return Row{ID: id, Cells: slices.Repeat([]Cell{Blank}, cols)}
}
