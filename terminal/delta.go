// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "fmt"

// DeltaKind selects which fields of a Delta are meaningful. The values
// are wire constants.
type DeltaKind uint8

const (
	// DeltaCell writes Cells[0] at (Row, Col).
	DeltaCell DeltaKind = iota + 1

	// DeltaRow replaces the whole of Row with Cells, blank-padded to
	// the grid width.
	DeltaRow

	// DeltaRect fills Height rows by Width columns starting at
	// (Row, Col) with Fill.
	DeltaRect

	// DeltaSegment writes Cells starting at (Row, Col).
	DeltaSegment

	// DeltaTrim announces that history below Row has been evicted.
	DeltaTrim

	// DeltaStyle defines Style in the style table.
	DeltaStyle

	// DeltaCursor moves the cursor.
	DeltaCursor

	// DeltaResize changes the grid to Width columns by Height rows.
	DeltaResize
)

func (kind DeltaKind) String() string {
	switch kind {
	case DeltaCell:
		return "cell"
	case DeltaRow:
		return "row"
	case DeltaRect:
		return "rect"
	case DeltaSegment:
		return "segment"
	case DeltaTrim:
		return "trim"
	case DeltaStyle:
		return "style"
	case DeltaCursor:
		return "cursor"
	case DeltaResize:
		return "resize"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(kind))
	}
}

// Delta is one mutation of the grid.
type Delta struct {
	Seq    Seq       `cbor:"q"`
	Kind   DeltaKind `cbor:"k"`
	Row    RowID     `cbor:"r,omitempty"`
	Col    int       `cbor:"c,omitempty"`
	Width  int       `cbor:"w,omitempty"`
	Height int       `cbor:"h,omitempty"`
	Cells  []Cell    `cbor:"x,omitempty"`
	Fill   Cell      `cbor:"f,omitempty"`
	Style  Style     `cbor:"s,omitempty"`
	Cursor Cursor    `cbor:"u,omitempty"`
}

// Rows returns the range of rows the delta writes, [first, end). Kinds
// that do not write cells return an empty range.
func (d Delta) Rows() (first, end RowID) {
	switch d.Kind {
	case DeltaCell, DeltaRow, DeltaSegment:
		return d.Row, d.Row + 1
	case DeltaRect:
		return d.Row, d.Row + RowID(max(d.Height, 0))
	default:
		return 0, 0
	}
}

// Writes calls fn once per row the delta writes, with the column and
// cells for that row on a grid cols wide. A Row delta is blank-padded
// to the full width.
func (d Delta) Writes(cols int, fn func(row RowID, col int, cells []Cell)) {
	switch d.Kind {
	case DeltaCell:
		if len(d.Cells) > 0 {
			fn(d.Row, d.Col, d.Cells[:1])
		}
	case DeltaSegment:
		fn(d.Row, d.Col, d.Cells)
	case DeltaRow:
		cells := make([]Cell, max(cols, len(d.Cells)))
		copy(cells, d.Cells)
		for i := len(d.Cells); i < len(cells); i++ {
			cells[i] = Blank
		}
		fn(d.Row, 0, cells)
	case DeltaRect:
		width := min(d.Width, cols-d.Col)
		if width <= 0 || d.Height <= 0 {
			return
		}
		fill := make([]Cell, width)
		for i := range fill {
			fill[i] = d.Fill
		}
		for i := 0; i < d.Height; i++ {
			fn(d.Row+RowID(i), d.Col, fill)
		}
	}
}

// Size estimates the delta's retained memory in bytes. The history
// store uses it for its byte budget.
func (d Delta) Size() int {
	return 64 + 12*len(d.Cells)
}
