// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineemu

import (
	"context"
	"strings"
	"testing"

	"github.com/bureau-foundation/termsync/terminal"
)

func feed(t *testing.T, cols, lines int, chunks ...string) []terminal.Mutation {
	t.Helper()
	emulator := New(cols, lines, 1024)
	for _, chunk := range chunks {
		if _, err := emulator.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	emulator.Close()
	var out []terminal.Mutation
	for m := range emulator.Mutations() {
		out = append(out, m)
	}
	return out
}

// render pushes mutations through a Translator into a Grid.
func render(cols, lines int, mutations []terminal.Mutation) *terminal.Grid {
	translator := terminal.NewTranslator(cols, lines)
	grid := terminal.NewGrid(cols, lines)
	var seq terminal.Seq
	for _, m := range mutations {
		for _, d := range translator.Translate(m) {
			seq++
			d.Seq = seq
			grid.Apply(d)
		}
	}
	return grid
}

func rowText(t *testing.T, grid *terminal.Grid, id terminal.RowID) string {
	t.Helper()
	row, ok := grid.Row(id)
	if !ok {
		t.Fatalf("row %d not in grid [%d,%d)", id, grid.Top(), grid.Bottom())
	}
	return row.Text()
}

func TestLinesScrollIntoHistory(t *testing.T) {
	t.Parallel()

	mutations := feed(t, 10, 3, "one\r\ntwo\r\nthree\r\nfour")
	grid := render(10, 3, mutations)

	if grid.Top() != 1 {
		t.Fatalf("top = %d, want 1", grid.Top())
	}
	for id, want := range map[terminal.RowID]string{1: "two", 2: "three", 3: "four"} {
		if got := rowText(t, grid, id); got != want {
			t.Errorf("row %d = %q, want %q", id, got, want)
		}
	}
	cursor := grid.Cursor()
	if cursor.Row != 3 || cursor.Col != 4 {
		t.Errorf("cursor = %+v, want row 3 col 4", cursor)
	}
}

func TestLongLineWraps(t *testing.T) {
	t.Parallel()

	grid := render(5, 4, feed(t, 5, 4, "abcdefg"))
	if got := rowText(t, grid, 0); got != "abcde" {
		t.Errorf("row 0 = %q, want abcde", got)
	}
	if got := rowText(t, grid, 1); got != "fg" {
		t.Errorf("row 1 = %q, want fg", got)
	}
}

func TestCarriageReturnOverwrites(t *testing.T) {
	t.Parallel()

	grid := render(20, 2, feed(t, 20, 2, "progress 10%\rprogress 99%"))
	if got := rowText(t, grid, 0); got != "progress 99%" {
		t.Errorf("row 0 = %q", got)
	}
}

func TestBackspaceAndTab(t *testing.T) {
	t.Parallel()

	grid := render(20, 2, feed(t, 20, 2, "ab\bX\tY"))
	if got := rowText(t, grid, 0); got != "aX      Y" {
		t.Errorf("row 0 = %q, want %q", got, "aX      Y")
	}
}

func TestSGRDefinesStyleOnce(t *testing.T) {
	t.Parallel()

	mutations := feed(t, 20, 2, "\x1b[1;31mred\x1b[0m plain \x1b[1;31mred")
	var styles []terminal.Style
	var styled []terminal.Cell
	for _, m := range mutations {
		switch m.Kind {
		case terminal.MutateStyle:
			styles = append(styles, m.Style)
		case terminal.MutateCells:
			for _, cell := range m.Cells {
				if cell.Style != 0 {
					styled = append(styled, cell)
				}
			}
		}
	}
	if len(styles) != 1 {
		t.Fatalf("defined %d styles, want 1", len(styles))
	}
	style := styles[0]
	if style.ID != 1 || style.Attributes&terminal.AttributeBold == 0 {
		t.Errorf("style = %+v, want bold id 1", style)
	}
	if style.Foreground&terminal.ColorExplicit == 0 {
		t.Errorf("foreground %#x not marked explicit", style.Foreground)
	}
	if len(styled) != 6 {
		t.Errorf("%d styled cells, want 6", len(styled))
	}
}

func TestTrueColor(t *testing.T) {
	t.Parallel()

	mutations := feed(t, 10, 1, "\x1b[38;2;16;32;48mx")
	for _, m := range mutations {
		if m.Kind == terminal.MutateStyle {
			if want := uint32(terminal.ColorExplicit | 0x102030); m.Style.Foreground != want {
				t.Errorf("foreground = %#x, want %#x", m.Style.Foreground, want)
			}
			return
		}
	}
	t.Fatal("no style defined")
}

func TestSequenceSplitAcrossWrites(t *testing.T) {
	t.Parallel()

	mutations := feed(t, 10, 1, "\x1b[3", "2mx")
	var cell terminal.Cell
	for _, m := range mutations {
		if m.Kind == terminal.MutateCells {
			cell = m.Cells[0]
		}
	}
	if cell.Rune != 'x' || cell.Style == 0 {
		t.Errorf("cell = %+v, want styled x", cell)
	}
}

func TestEraseLine(t *testing.T) {
	t.Parallel()

	grid := render(10, 2, feed(t, 10, 2, "abcdef\x1b[3D\x1b[K"))
	if got := rowText(t, grid, 0); got != "abc" {
		t.Errorf("row 0 = %q, want abc", got)
	}
}

func TestCursorPositioning(t *testing.T) {
	t.Parallel()

	grid := render(10, 3, feed(t, 10, 3, "\x1b[2J\x1b[3;4Hz"))
	if got := rowText(t, grid, 2); got != "   z" {
		t.Errorf("row 2 = %q, want %q", got, "   z")
	}
}

func TestRunClosesOnEOF(t *testing.T) {
	t.Parallel()

	emulator := New(10, 2, 64)
	if err := emulator.Run(context.Background(), strings.NewReader("hi\n")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	count := 0
	for range emulator.Mutations() {
		count++
	}
	if count == 0 {
		t.Error("no mutations delivered")
	}
	if _, err := emulator.Write([]byte("late")); err != ErrClosed {
		t.Errorf("Write after close = %v, want ErrClosed", err)
	}
}
