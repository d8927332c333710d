// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lineemu

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/termsync/terminal"
)

const tabWidth = 8

// Emulator turns a byte stream into screen mutations. It implements
// terminal.Emulator and io.WriteCloser. Write is not safe for
// concurrent use; Dimensions is.
type Emulator struct {
	parser    *ansi.Parser
	mutations chan terminal.Mutation

	mu    sync.Mutex
	cols  int
	lines int

	line, col   int
	wrapPending bool
	cursorShown bool
	lastLine    int
	lastCol     int

	pen     terminal.Style
	styles  map[terminal.Style]terminal.StyleID
	styleID terminal.StyleID

	run    []terminal.Cell
	runAt  int
	runRow int

	out    []terminal.Mutation
	closed bool
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("lineemu: emulator closed")

// New returns an emulator for a screen of cols by lines. The mutation
// channel holds buffer entries; Write blocks when it is full.
func New(cols, lines, buffer int) *Emulator {
	e := &Emulator{
		parser:      ansi.NewParser(),
		mutations:   make(chan terminal.Mutation, max(buffer, 1)),
		cols:        max(cols, 1),
		lines:       max(lines, 1),
		cursorShown: true,
		lastLine:    -1,
		styles:      make(map[terminal.Style]terminal.StyleID),
	}
	e.parser.SetHandler(ansi.Handler{
		Print:     e.print,
		Execute:   e.execute,
		HandleCsi: e.csi,
	})
	return e
}

// Dimensions returns the screen size.
func (e *Emulator) Dimensions() (cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cols, e.lines
}

// Mutations returns the channel of changes. It is closed by Close.
func (e *Emulator) Mutations() <-chan terminal.Mutation { return e.mutations }

// Write parses p and delivers the resulting mutations. Escape
// sequences split across calls are reassembled.
func (e *Emulator) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	for _, b := range p {
		e.parser.Advance(b)
	}
	e.flushRun()
	e.noteCursor()
	for _, m := range e.out {
		e.mutations <- m
	}
	e.out = e.out[:0]
	return len(p), nil
}

// Resize changes the screen size. The cursor is clamped into the new
// screen.
func (e *Emulator) Resize(cols, lines int) {
	if cols <= 0 || lines <= 0 {
		return
	}
	e.flushRun()
	e.mu.Lock()
	e.cols, e.lines = cols, lines
	e.mu.Unlock()
	if e.line >= lines {
		e.line = lines - 1
	}
	e.col = min(e.col, cols-1)
	e.wrapPending = false
	e.mutations <- terminal.Mutation{Kind: terminal.MutateResize, Width: cols, Height: lines}
}

// Close ends the stream and closes the mutation channel.
func (e *Emulator) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.mutations)
	return nil
}

// Run copies r into the emulator until r ends or ctx is done, then
// closes the emulator. io.EOF is not an error.
func (e *Emulator) Run(ctx context.Context, r io.Reader) error {
	defer e.Close()
	buffer := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buffer)
		if n > 0 {
			if _, writeErr := e.Write(buffer[:n]); writeErr != nil {
				return writeErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (e *Emulator) emit(m terminal.Mutation) {
	e.out = append(e.out, m)
}

func (e *Emulator) print(r rune) {
	width := ansi.StringWidth(string(r))
	if width == 0 {
		return
	}
	if e.wrapPending || e.col+width > e.cols {
		e.flushRun()
		e.col = 0
		e.lineFeed()
		e.wrapPending = false
	}
	if e.run == nil || e.runRow != e.line || e.runAt+len(e.run) != e.col {
		e.flushRun()
		e.runRow, e.runAt = e.line, e.col
	}
	e.run = append(e.run, terminal.Cell{Rune: r, Style: e.styleID})
	for extra := 1; extra < width; extra++ {
		e.run = append(e.run, terminal.Cell{Rune: ' ', Style: e.styleID})
	}
	e.col += width
	if e.col >= e.cols {
		e.col = e.cols - 1
		e.wrapPending = true
	}
}

func (e *Emulator) flushRun() {
	if len(e.run) == 0 {
		e.run = nil
		return
	}
	e.emit(terminal.Mutation{Kind: terminal.MutateCells, Line: e.runRow, Col: e.runAt, Cells: e.run})
	e.run = nil
}

func (e *Emulator) execute(b byte) {
	e.flushRun()
	switch b {
	case ansi.CR:
		e.col = 0
		e.wrapPending = false
	case ansi.LF, ansi.VT, ansi.FF:
		e.lineFeed()
		e.col = 0
		e.wrapPending = false
	case ansi.BS:
		if e.wrapPending {
			e.wrapPending = false
			return
		}
		e.col = max(e.col-1, 0)
	case ansi.HT:
		e.col = min((e.col/tabWidth+1)*tabWidth, e.cols-1)
	}
}

// lineFeed moves down one line, scrolling at the bottom.
func (e *Emulator) lineFeed() {
	if e.line < e.lines-1 {
		e.line++
		return
	}
	e.emit(terminal.Mutation{Kind: terminal.MutateScroll, Lines: 1})
}

func (e *Emulator) csi(cmd ansi.Cmd, params ansi.Params) {
	e.flushRun()
	if cmd.Prefix() == '?' {
		e.privateMode(cmd, params)
		return
	}
	param := func(i, def int) int {
		value, _, _ := params.Param(i, def)
		return value
	}
	switch cmd.Final() {
	case 'm':
		e.sgr(params)
	case 'A':
		e.moveTo(e.line-max(param(0, 1), 1), e.col)
	case 'B':
		e.moveTo(e.line+max(param(0, 1), 1), e.col)
	case 'C':
		e.moveTo(e.line, e.col+max(param(0, 1), 1))
	case 'D':
		e.moveTo(e.line, e.col-max(param(0, 1), 1))
	case 'G':
		e.moveTo(e.line, param(0, 1)-1)
	case 'H', 'f':
		e.moveTo(param(0, 1)-1, param(1, 1)-1)
	case 'K':
		e.eraseLine(param(0, 0))
	case 'J':
		e.eraseDisplay(param(0, 0))
	}
}

func (e *Emulator) privateMode(cmd ansi.Cmd, params ansi.Params) {
	mode, _, _ := params.Param(0, 0)
	if mode != 25 {
		return
	}
	switch cmd.Final() {
	case 'h':
		e.cursorShown = true
	case 'l':
		e.cursorShown = false
	}
	e.lastLine = -1
}

func (e *Emulator) moveTo(line, col int) {
	e.line = min(max(line, 0), e.lines-1)
	e.col = min(max(col, 0), e.cols-1)
	e.wrapPending = false
}

func (e *Emulator) eraseLine(mode int) {
	switch mode {
	case 0:
		e.clear(e.line, e.col, e.cols-e.col, 1)
	case 1:
		e.clear(e.line, 0, e.col+1, 1)
	case 2:
		e.clear(e.line, 0, e.cols, 1)
	}
}

func (e *Emulator) eraseDisplay(mode int) {
	switch mode {
	case 0:
		e.eraseLine(0)
		e.clear(e.line+1, 0, e.cols, e.lines-e.line-1)
	case 1:
		e.clear(0, 0, e.cols, e.line)
		e.eraseLine(1)
	case 2:
		e.clear(0, 0, e.cols, e.lines)
	}
}

func (e *Emulator) clear(line, col, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.emit(terminal.Mutation{Kind: terminal.MutateClear, Line: line, Col: col, Width: width, Height: height})
}

func (e *Emulator) noteCursor() {
	if e.line == e.lastLine && e.col == e.lastCol {
		return
	}
	e.lastLine, e.lastCol = e.line, e.col
	e.emit(terminal.Mutation{Kind: terminal.MutateCursor, Line: e.line, Col: e.col, Visible: e.cursorShown})
}
