// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

// Translator converts screen-relative mutations into deltas on
// absolute rows. It tracks the RowID of screen line 0; nothing
// downstream of it ever sees a screen index.
//
// The deltas it returns have no sequence number. The history store
// assigns one on Append.
type Translator struct {
	top   RowID
	cols  int
	lines int
}

// NewTranslator returns a Translator for a screen of the given size
// whose first line is row 0.
func NewTranslator(cols, lines int) *Translator {
	return &Translator{cols: max(cols, 1), lines: max(lines, 1)}
}

// Top returns the RowID of screen line 0.
func (t *Translator) Top() RowID { return t.top }

// RowOf returns the RowID of screen line line.
func (t *Translator) RowOf(line int) RowID {
	return t.top + RowID(max(line, 0))
}

// Translate returns the deltas for m. Mutations addressing lines
// outside the screen are clipped; a mutation that is entirely outside
// yields nothing.
func (t *Translator) Translate(m Mutation) []Delta {
	switch m.Kind {
	case MutateCells:
		if !t.onScreen(m.Line) || len(m.Cells) == 0 {
			return nil
		}
		return []Delta{{Kind: DeltaSegment, Row: t.RowOf(m.Line), Col: m.Col, Cells: clearSeq(m.Cells)}}

	case MutateLine:
		if !t.onScreen(m.Line) {
			return nil
		}
		return []Delta{{Kind: DeltaRow, Row: t.RowOf(m.Line), Cells: clearSeq(m.Cells)}}

	case MutateClear:
		first := max(m.Line, 0)
		last := min(m.Line+m.Height, t.lines)
		if last <= first || m.Width <= 0 {
			return nil
		}
		return []Delta{{
			Kind:   DeltaRect,
			Row:    t.RowOf(first),
			Col:    m.Col,
			Width:  m.Width,
			Height: last - first,
			Fill:   Blank,
		}}

	case MutateScroll:
		if m.Lines <= 0 {
			return nil
		}
		t.top += RowID(m.Lines)
		// Writing the new bottom line brings every row up to it into
		// existence and pushes the window forward.
		return []Delta{{Kind: DeltaRow, Row: t.RowOf(t.lines - 1)}}

	case MutateCursor:
		line := min(max(m.Line, 0), t.lines-1)
		return []Delta{{
			Kind:   DeltaCursor,
			Cursor: Cursor{Row: t.RowOf(line), Col: min(max(m.Col, 0), t.cols-1), Visible: m.Visible},
		}}

	case MutateStyle:
		if m.Style.ID == 0 {
			return nil
		}
		return []Delta{{Kind: DeltaStyle, Style: m.Style}}

	case MutateResize:
		if m.Width <= 0 || m.Height <= 0 {
			return nil
		}
		if m.Height < t.lines {
			// The screen keeps its bottom line; lines cut from the
			// top become scrollback.
			t.top += RowID(t.lines - m.Height)
		}
		t.cols, t.lines = m.Width, m.Height
		return []Delta{{Kind: DeltaResize, Width: m.Width, Height: m.Height}}
	}
	return nil
}

func (t *Translator) onScreen(line int) bool {
	return line >= 0 && line < t.lines
}

func clearSeq(cells []Cell) []Cell {
	out := make([]Cell, len(cells))
	for i, cell := range cells {
		cell.Seq = 0
		out[i] = cell
	}
	return out
}
