// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "strings"

// RowID is the absolute, never reused identity of one terminal line.
type RowID uint64

// Seq is the global mutation sequence number. Zero means "never
// written".
type Seq uint64

// StyleID references an entry in the style table. Zero is the
// terminal's default style and is never defined explicitly.
type StyleID uint32

// Cell is one character position.
type Cell struct {
	Rune  rune    `cbor:"r"`
	Style StyleID `cbor:"s,omitempty"`
	// Seq is the sequence of the write that last set this cell.
	Seq Seq `cbor:"q,omitempty"`
}

// Blank is an unwritten cell.
var Blank = Cell{Rune: ' '}

// Row is one line of cells.
type Row struct {
	ID    RowID  `cbor:"i"`
	Cells []Cell `cbor:"c,omitempty"`
	// Watermark is the highest sequence applied to any cell of the row.
	Watermark Seq `cbor:"w,omitempty"`
}

// Text returns the row's characters with trailing blanks removed.
func (r Row) Text() string {
	var builder strings.Builder
	for _, cell := range r.Cells {
		if cell.Rune == 0 {
			builder.WriteRune(' ')
			continue
		}
		builder.WriteRune(cell.Rune)
	}
	return strings.TrimRight(builder.String(), " ")
}

// Clone returns a deep copy.
func (r Row) Clone() Row {
	clone := r
	clone.Cells = append([]Cell(nil), r.Cells...)
	return clone
}

// Equal reports whether two rows have the same id and cell content,
// ignoring sequence numbers.
func (r Row) Equal(other Row) bool {
	return r.ID == other.ID && r.Text() == other.Text() && sameStyles(r.Cells, other.Cells)
}

func sameStyles(a, b []Cell) bool {
	longest := max(len(a), len(b))
	for i := 0; i < longest; i++ {
		var left, right StyleID
		if i < len(a) {
			left = a[i].Style
		}
		if i < len(b) {
			right = b[i].Style
		}
		if left != right {
			return false
		}
	}
	return true
}

// Write places cells starting at col, skipping any cell whose current
// sequence is at or above seq. Cells past the row's width are dropped.
// It reports whether anything changed.
func (r *Row) Write(col int, cells []Cell, seq Seq) bool {
	if col < 0 {
		return false
	}
	changed := false
	for i, cell := range cells {
		position := col + i
		if position >= len(r.Cells) {
			break
		}
		if seq <= r.Cells[position].Seq {
			continue
		}
		cell.Seq = seq
		r.Cells[position] = cell
		changed = true
	}
	if changed && seq > r.Watermark {
		r.Watermark = seq
	}
	return changed
}

// Merge takes each cell of other whose sequence is above the
// corresponding cell of r. A zero cell (Rune 0) is a placeholder and
// always yields.
func (r *Row) Merge(other Row) bool {
	changed := false
	for i, cell := range other.Cells {
		if i >= len(r.Cells) {
			break
		}
		current := r.Cells[i]
		if cell == current || (current.Rune != 0 && cell.Seq <= current.Seq) {
			continue
		}
		r.Cells[i] = cell
		changed = true
	}
	r.Watermark = max(r.Watermark, other.Watermark)
	return changed
}

// TextCells converts s into cells with the given style and no sequence.
// Used by emulators and tests to build mutation content.
func TextCells(s string, style StyleID) []Cell {
	cells := make([]Cell, 0, len(s))
	for _, r := range s {
		cells = append(cells, Cell{Rune: r, Style: style})
	}
	return cells
}

// Style is one style table entry. Colors are 0xRRGGBB with the top
// byte set when the color is explicit.
type Style struct {
	ID         StyleID `cbor:"i"`
	Foreground uint32  `cbor:"f,omitempty"`
	Background uint32  `cbor:"b,omitempty"`
	Attributes uint16  `cbor:"a,omitempty"`
}

// ColorExplicit is set in a style color that was chosen explicitly;
// a color without it is the terminal default.
const ColorExplicit uint32 = 0xFF000000

// Style attribute bits.
const (
	AttributeBold uint16 = 1 << iota
	AttributeItalic
	AttributeUnderline
	AttributeReverse
	AttributeDim
)

// Cursor is the cursor position in absolute coordinates.
type Cursor struct {
	Row     RowID `cbor:"r"`
	Col     int   `cbor:"c"`
	Visible bool  `cbor:"v"`
}
