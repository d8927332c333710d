// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package terminal

import "testing"

// drive feeds mutations through a translator into a grid, numbering the
// deltas as the history store would.
func drive(translator *Translator, grid *Grid, mutations ...Mutation) {
	for _, m := range mutations {
		for _, d := range translator.Translate(m) {
			d.Seq = grid.Seq() + 1
			grid.Apply(d)
		}
	}
}

func TestTranslatorScrollAssignsNewRows(t *testing.T) {
	t.Parallel()
	translator := NewTranslator(10, 3)
	grid := NewGrid(10, 3)

	drive(translator, grid,
		Mutation{Kind: MutateLine, Line: 0, Cells: TextCells("first", 0)},
		Mutation{Kind: MutateLine, Line: 1, Cells: TextCells("second", 0)},
		Mutation{Kind: MutateLine, Line: 2, Cells: TextCells("third", 0)},
		Mutation{Kind: MutateScroll, Lines: 1},
		Mutation{Kind: MutateLine, Line: 2, Cells: TextCells("fourth", 0)},
	)

	if translator.Top() != 1 {
		t.Fatalf("Top() = %d, want 1", translator.Top())
	}
	if grid.Top() != 1 || grid.Bottom() != 4 {
		t.Fatalf("grid window [%d, %d), want [1, 4)", grid.Top(), grid.Bottom())
	}
	if got := rowText(t, grid, 3); got != "fourth" {
		t.Errorf("row 3 = %q, want fourth", got)
	}
	if got := rowText(t, grid, 1); got != "second" {
		t.Errorf("row 1 = %q, want second", got)
	}
}

func TestTranslatorClipsOffscreen(t *testing.T) {
	t.Parallel()
	translator := NewTranslator(10, 3)
	if deltas := translator.Translate(Mutation{Kind: MutateCells, Line: 5, Cells: TextCells("x", 0)}); len(deltas) != 0 {
		t.Errorf("off-screen write produced %d deltas", len(deltas))
	}
	deltas := translator.Translate(Mutation{Kind: MutateClear, Line: 1, Width: 10, Height: 10})
	if len(deltas) != 1 || deltas[0].Height != 2 || deltas[0].Row != 1 {
		t.Errorf("clipped clear = %+v", deltas)
	}
	cursor := translator.Translate(Mutation{Kind: MutateCursor, Line: 9, Col: 99, Visible: true})
	if cursor[0].Cursor.Row != 2 || cursor[0].Cursor.Col != 9 {
		t.Errorf("clamped cursor = %+v", cursor[0].Cursor)
	}
}

func TestTranslatorResizeKeepsBottomLine(t *testing.T) {
	t.Parallel()
	translator := NewTranslator(10, 5)
	deltas := translator.Translate(Mutation{Kind: MutateResize, Width: 8, Height: 3})
	if len(deltas) != 1 || deltas[0].Kind != DeltaResize {
		t.Fatalf("resize deltas = %+v", deltas)
	}
	if translator.Top() != 2 {
		t.Errorf("Top() = %d, want 2", translator.Top())
	}
	if translator.RowOf(2) != 4 {
		t.Errorf("bottom line maps to %d, want 4", translator.RowOf(2))
	}
}

func TestTranslatorStripsSequence(t *testing.T) {
	t.Parallel()
	translator := NewTranslator(10, 3)
	cells := []Cell{{Rune: 'a', Seq: 99}}
	deltas := translator.Translate(Mutation{Kind: MutateCells, Line: 0, Cells: cells})
	if deltas[0].Cells[0].Seq != 0 {
		t.Errorf("translated cell carries seq %d", deltas[0].Cells[0].Seq)
	}
	if cells[0].Seq != 99 {
		t.Error("Translate modified the caller's cells")
	}
}
