// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewui

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/termsync/replica"
	"github.com/bureau-foundation/termsync/terminal"
)

// Source is the replica the model draws. *replica.Cache implements it.
type Source interface {
	Viewport() replica.Viewport
	Changed() <-chan struct{}
	ScrollBy(lines int)
	ScrollTo(row terminal.RowID)
	Follow()
}

// InputFunc delivers encoded keystrokes. It reports false when the
// input was dropped.
type InputFunc func(data []byte) bool

// changedMsg wakes the model after the source changed.
type changedMsg struct{}

// statusFadeMsg clears a log line from the status bar. The generation
// keeps an old timer from clearing a newer line.
type statusFadeMsg struct{ generation int }

const statusFadeDelay = 5 * time.Second

// Model is the bubbletea model of one viewer.
type Model struct {
	source   Source
	input    InputFunc
	keys     KeyMap
	theme    Theme
	help     help.Model
	title    string
	renderer *lipgloss.Renderer

	width, height int

	status           *logRecordMsg
	statusGeneration int
	droppedInput     int
}

// NewModel returns a model drawing source and sending keys to input.
// A nil input makes the viewer read-only.
func NewModel(source Source, input InputFunc, title string) Model {
	return Model{
		source:   source,
		input:    input,
		keys:     DefaultKeyMap,
		theme:    DefaultTheme,
		help:     help.New(),
		title:    title,
		renderer: lipgloss.DefaultRenderer(),
	}
}

// WithColorProfile renders with profile instead of the one detected
// from the terminal.
func (model Model) WithColorProfile(profile termenv.Profile) Model {
	model.renderer = lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(profile))
	model.renderer.SetColorProfile(profile)
	return model
}

// ParseColorProfile maps a profile name (none, ansi, ansi256 or
// truecolor) to its termenv profile.
func ParseColorProfile(name string) (termenv.Profile, error) {
	switch name {
	case "none":
		return termenv.Ascii, nil
	case "ansi":
		return termenv.ANSI, nil
	case "ansi256":
		return termenv.ANSI256, nil
	case "truecolor":
		return termenv.TrueColor, nil
	default:
		return termenv.Ascii, fmt.Errorf("unknown color profile %q (want none, ansi, ansi256 or truecolor)", name)
	}
}

// waitForChange blocks until the source changes. The channel is taken
// before the next render reads the viewport, so no change is missed.
func waitForChange(source Source) tea.Cmd {
	changed := source.Changed()
	return func() tea.Msg {
		<-changed
		return changedMsg{}
	}
}

func (model Model) Init() tea.Cmd {
	return waitForChange(model.source)
}

func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.help.Width = message.Width
		return model, nil

	case changedMsg:
		return model, waitForChange(model.source)

	case logRecordMsg:
		model.status = &message
		model.statusGeneration++
		generation := model.statusGeneration
		return model, tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
			return statusFadeMsg{generation: generation}
		})

	case statusFadeMsg:
		if message.generation == model.statusGeneration {
			model.status = nil
		}
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := max(model.contentHeight()-1, 1)
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit
	case key.Matches(message, model.keys.LineUp):
		model.source.ScrollBy(-1)
	case key.Matches(message, model.keys.LineDown):
		model.source.ScrollBy(1)
	case key.Matches(message, model.keys.PageUp):
		model.source.ScrollBy(-page)
	case key.Matches(message, model.keys.PageDown):
		model.source.ScrollBy(page)
	case key.Matches(message, model.keys.Top):
		model.source.ScrollTo(0)
	case key.Matches(message, model.keys.Follow):
		model.source.Follow()
	default:
		if model.input == nil {
			return model, nil
		}
		data := encodeKey(message)
		if data == nil {
			return model, nil
		}
		if !model.input(data) {
			model.droppedInput++
		}
		// Typing returns to the live screen, as a local terminal does.
		model.source.Follow()
	}
	return model, nil
}

// contentHeight is the number of lines available for terminal rows.
func (model Model) contentHeight() int {
	if model.height <= 1 {
		return model.source.Viewport().Height
	}
	return model.height - 1
}

func (model Model) View() string {
	view := model.source.Viewport()
	width := model.width
	if width <= 0 {
		width = view.Cols
	}

	lines := make([]string, 0, model.contentHeight()+1)
	for _, row := range view.Rows {
		if len(lines) == model.contentHeight() {
			break
		}
		lines = append(lines, model.renderRow(row, view, width))
	}
	for len(lines) < model.contentHeight() {
		lines = append(lines, strings.Repeat(" ", width))
	}
	lines = append(lines, model.renderStatus(view, width))
	return strings.Join(lines, "\n")
}

func (model Model) renderRow(row replica.ViewRow, view replica.Viewport, width int) string {
	switch row.State {
	case replica.RowLoading:
		return model.renderer.NewStyle().Foreground(model.theme.Placeholder).
			Render(padRight(strings.Repeat("·", min(width, 3)), width))
	case replica.RowUnavailable:
		return model.renderer.NewStyle().Foreground(model.theme.Unavailable).
			Render(padRight("░ no longer held by the host", width))
	}

	cursorCol := -1
	if view.Follow && view.Cursor.Visible && view.Cursor.Row == row.ID {
		cursorCol = view.Cursor.Col
	}

	var builder strings.Builder
	cells := row.Row.Cells
	limit := min(len(cells), width)
	col := 0
	for col < limit {
		// Runs share one style; the cursor cell is a run of its own.
		start := col
		style := cells[col].Style
		col++
		if start != cursorCol {
			for col < limit && cells[col].Style == style && col != cursorCol {
				col++
			}
		}
		var text strings.Builder
		for _, cell := range cells[start:col] {
			if cell.Rune == 0 {
				text.WriteRune(' ')
				continue
			}
			text.WriteRune(cell.Rune)
		}
		rendered := cellStyle(model.renderer, view.Styles[style])
		if start == cursorCol {
			rendered = rendered.Reverse(true)
		}
		builder.WriteString(rendered.Render(text.String()))
	}
	if cursorCol >= col && cursorCol < width {
		builder.WriteString(strings.Repeat(" ", cursorCol-col))
		builder.WriteString(model.renderer.NewStyle().Reverse(true).Render(" "))
		col = cursorCol + 1
	}
	if col < width {
		builder.WriteString(strings.Repeat(" ", width-col))
	}
	return builder.String()
}

func (model Model) renderStatus(view replica.Viewport, width int) string {
	bar := model.renderer.NewStyle().
		Foreground(model.theme.StatusText).
		Background(model.theme.StatusBar)

	var left string
	switch {
	case view.Follow:
		left = fmt.Sprintf(" %s  live  %d rows", model.title, view.Tail)
	default:
		left = fmt.Sprintf(" %s  row %d of %d", model.title, view.Top, view.Tail)
		left = model.renderer.NewStyle().Foreground(model.theme.ScrolledMark).Inherit(bar).Render(left)
	}
	if model.droppedInput > 0 {
		left += fmt.Sprintf("  %d keys dropped", model.droppedInput)
	}

	right := model.help.ShortHelpView(model.keys.ShortHelp())
	if model.status != nil {
		color := model.theme.StatusText
		switch {
		case model.status.Level >= slog.LevelError:
			color = model.theme.ErrorText
		case model.status.Level >= slog.LevelWarn:
			color = model.theme.WarnText
		}
		right = model.renderer.NewStyle().Foreground(color).Inherit(bar).Render(model.status.Summary)
	}

	gap := width - ansi.StringWidth(left) - ansi.StringWidth(right) - 1
	if gap < 1 {
		right = ansi.Truncate(right, max(width-ansi.StringWidth(left)-2, 0), "…")
		gap = max(width-ansi.StringWidth(left)-ansi.StringWidth(right)-1, 1)
	}
	return bar.Render(left + strings.Repeat(" ", gap) + right + " ")
}

// padRight pads s with spaces to width cells, truncating when longer.
func padRight(s string, width int) string {
	s = ansi.Truncate(s, width, "")
	return s + strings.Repeat(" ", max(width-ansi.StringWidth(s), 0))
}
