// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/termsync/replica"
	"github.com/bureau-foundation/termsync/terminal"
)

type fakeSource struct {
	view     replica.Viewport
	changed  chan struct{}
	scrolls  []int
	scrollTo []terminal.RowID
	follows  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		view:    replica.Viewport{Cols: 10, Height: 3, Follow: true},
		changed: make(chan struct{}),
	}
}

func (s *fakeSource) Viewport() replica.Viewport  { return s.view }
func (s *fakeSource) Changed() <-chan struct{}    { return s.changed }
func (s *fakeSource) ScrollBy(lines int)          { s.scrolls = append(s.scrolls, lines) }
func (s *fakeSource) ScrollTo(row terminal.RowID) { s.scrollTo = append(s.scrollTo, row) }
func (s *fakeSource) Follow()                     { s.follows++ }

func sized(model Model, width, height int) Model {
	updated, _ := model.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return updated.(Model)
}

func press(t *testing.T, model Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := model.Update(msg)
	return updated.(Model), cmd
}

func TestScrollKeysMoveTheViewport(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	model := sized(NewModel(source, nil, "test"), 10, 11)

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyShiftUp})
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyPgUp})
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyPgDown})
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyShiftDown})
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyCtrlHome})
	press(t, model, tea.KeyMsg{Type: tea.KeyCtrlEnd})

	want := []int{-1, -9, 9, 1}
	if len(source.scrolls) != len(want) {
		t.Fatalf("scrolls = %v, want %v", source.scrolls, want)
	}
	for i := range want {
		if source.scrolls[i] != want[i] {
			t.Errorf("scroll %d = %d, want %d", i, source.scrolls[i], want[i])
		}
	}
	if len(source.scrollTo) != 1 || source.scrollTo[0] != 0 {
		t.Errorf("scrollTo = %v, want [0]", source.scrollTo)
	}
	if source.follows != 1 {
		t.Errorf("follows = %d, want 1", source.follows)
	}
}

func TestTypingIsForwardedAsTerminalInput(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	var sent []string
	input := func(data []byte) bool {
		sent = append(sent, string(data))
		return true
	}
	model := sized(NewModel(source, input, "test"), 10, 4)

	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("ls")},
		{Type: tea.KeyEnter},
		{Type: tea.KeyUp},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyRunes, Runes: []rune("x"), Alt: true},
		{Type: tea.KeyBackspace},
	} {
		model, _ = press(t, model, msg)
	}

	want := []string{"ls", "\r", "\x1b[A", "\x03", "\x1bx", "\x7f"}
	if strings.Join(sent, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", sent, want)
	}
	if source.follows != len(want) {
		t.Errorf("follows = %d, want typing to return to the live screen each time", source.follows)
	}
}

func TestDroppedInputIsCounted(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	model := sized(NewModel(source, func([]byte) bool { return false }, "test"), 40, 4)
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if !strings.Contains(ansi.Strip(model.View()), "1 keys dropped") {
		t.Errorf("status does not report the dropped key:\n%s", ansi.Strip(model.View()))
	}
}

func TestQuitKey(t *testing.T) {
	t.Parallel()
	model := NewModel(newFakeSource(), nil, "test")
	_, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyCtrlQ})
	if cmd == nil {
		t.Fatal("ctrl+q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+q did not quit")
	}
}

func TestViewDrawsRowsAndPlaceholders(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	source.view = replica.Viewport{
		Top:    7,
		Cols:   10,
		Height: 3,
		Tail:   20,
		Rows: []replica.ViewRow{
			{ID: 7, State: replica.RowLoaded, Row: terminal.Row{ID: 7, Cells: terminal.TextCells("hello", 0)}},
			{ID: 8, State: replica.RowLoading},
			{ID: 9, State: replica.RowUnavailable},
		},
	}
	model := sized(NewModel(source, nil, "test"), 10, 4)

	lines := strings.Split(ansi.Strip(model.View()), "\n")
	if len(lines) != 4 {
		t.Fatalf("view has %d lines, want 3 rows and a status line", len(lines))
	}
	if lines[0] != "hello     " {
		t.Errorf("loaded row = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "···") {
		t.Errorf("loading row = %q, want a placeholder", lines[1])
	}
	if !strings.HasPrefix(lines[2], "░") {
		t.Errorf("unavailable row = %q, want the shaded marker", lines[2])
	}
}

func TestViewMarksTheCursor(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	source.view = replica.Viewport{
		Cols:   10,
		Height: 1,
		Follow: true,
		Tail:   1,
		Cursor: terminal.Cursor{Row: 0, Col: 6, Visible: true},
		Rows: []replica.ViewRow{
			{ID: 0, State: replica.RowLoaded, Row: terminal.Row{Cells: terminal.TextCells("$ ls", 0)}},
		},
	}
	model := sized(NewModel(source, nil, "test"), 10, 2)
	first := strings.Split(ansi.Strip(model.View()), "\n")[0]
	if first != "$ ls      " {
		t.Errorf("row = %q, want the text padded past the cursor", first)
	}
}

func TestChangesAreAwaited(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	model := NewModel(source, nil, "test")
	cmd := model.Init()
	close(source.changed)
	msg := cmd()
	if _, ok := msg.(changedMsg); !ok {
		t.Fatalf("Init command returned %T, want changedMsg", msg)
	}
	if _, next := model.Update(msg); next == nil {
		t.Error("a change did not rearm the wait")
	}
}

func TestLogLinesFade(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	model := sized(NewModel(source, nil, "test"), 80, 4)

	updated, cmd := model.Update(logRecordMsg{Summary: "redialing"})
	model = updated.(Model)
	if cmd == nil {
		t.Fatal("log line scheduled no fade")
	}
	if !strings.Contains(ansi.Strip(model.View()), "redialing") {
		t.Fatal("log line not shown")
	}

	updated, _ = model.Update(logRecordMsg{Summary: "reconnected"})
	model = updated.(Model)
	updated, _ = model.Update(statusFadeMsg{generation: 1})
	model = updated.(Model)
	if !strings.Contains(ansi.Strip(model.View()), "reconnected") {
		t.Error("a stale fade cleared the newer line")
	}
	updated, _ = model.Update(statusFadeMsg{generation: 2})
	model = updated.(Model)
	if strings.Contains(ansi.Strip(model.View()), "reconnected") {
		t.Error("fade did not clear the line")
	}
}

func TestTrueColorProfileKeepsHostColors(t *testing.T) {
	t.Parallel()
	source := newFakeSource()
	source.view = replica.Viewport{
		Cols:   10,
		Height: 1,
		Tail:   1,
		Styles: map[terminal.StyleID]terminal.Style{
			1: {ID: 1, Foreground: terminal.ColorExplicit | 0x102030},
		},
		Rows: []replica.ViewRow{
			{ID: 0, State: replica.RowLoaded, Row: terminal.Row{Cells: terminal.TextCells("red", 1)}},
		},
	}
	model := sized(NewModel(source, nil, "test"), 10, 2).WithColorProfile(termenv.TrueColor)
	if view := model.View(); !strings.Contains(view, "38;2;16;32;48") {
		t.Errorf("view lacks the host's truecolor foreground: %q", view)
	}
}

func TestParseColorProfile(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]termenv.Profile{
		"none":      termenv.Ascii,
		"ansi":      termenv.ANSI,
		"ansi256":   termenv.ANSI256,
		"truecolor": termenv.TrueColor,
	} {
		if got, err := ParseColorProfile(name); err != nil || got != want {
			t.Errorf("ParseColorProfile(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseColorProfile("sixel"); err == nil {
		t.Error("unknown profile accepted")
	}
}
