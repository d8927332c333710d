// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"fmt"

	"github.com/bureau-foundation/termsync/terminal"
)

// RowState is how a viewport row should be drawn.
type RowState uint8

const (
	// RowLoaded rows have content.
	RowLoaded RowState = iota + 1
	// RowLoading rows are expected to arrive.
	RowLoading
	// RowUnavailable rows are gone from the host.
	RowUnavailable
)

func (s RowState) String() string {
	switch s {
	case RowLoaded:
		return "loaded"
	case RowLoading:
		return "loading"
	case RowUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("row_state(%d)", uint8(s))
	}
}

// ViewRow is one row of a Viewport. Row is set only when State is
// RowLoaded.
type ViewRow struct {
	ID    terminal.RowID
	State RowState
	Row   terminal.Row
}

// Viewport is what the renderer draws.
type Viewport struct {
	Top    terminal.RowID
	Rows   []ViewRow
	Cols   int
	Height int
	// Follow is true while the viewport tracks the tail.
	Follow bool
	Tail   terminal.RowID
	// Cursor.Visible is false when the cursor is outside Rows.
	Cursor terminal.Cursor
	Styles map[terminal.StyleID]terminal.Style
}

// Viewport returns the rows currently in view.
func (c *Cache) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()

	top, bottom := c.viewRangeLocked()
	view := Viewport{
		Top:    top,
		Rows:   make([]ViewRow, 0, int(bottom-top)),
		Cols:   c.cols,
		Height: c.height,
		Follow: c.follow,
		Tail:   c.tail,
		Cursor: c.cursor,
		Styles: make(map[terminal.StyleID]terminal.Style, len(c.styles)),
	}
	for id := top; id < bottom; id++ {
		view.Rows = append(view.Rows, c.viewRowLocked(id))
	}
	if c.cursor.Row < top || c.cursor.Row >= bottom {
		view.Cursor.Visible = false
	}
	for id, style := range c.styles {
		view.Styles[id] = style
	}
	return view
}

func (c *Cache) viewRowLocked(id terminal.RowID) ViewRow {
	s, ok := c.slots[id]
	switch {
	case ok && s.state == SlotLoaded:
		return ViewRow{ID: id, State: RowLoaded, Row: s.row.Clone()}
	case ok && s.state == SlotMissing:
		return ViewRow{ID: id, State: RowUnavailable}
	case id < c.knownBase && !(c.anchored && id >= c.anchor):
		return ViewRow{ID: id, State: RowUnavailable}
	default:
		return ViewRow{ID: id, State: RowLoading}
	}
}

// viewRangeLocked returns the rows in view, [top, bottom).
func (c *Cache) viewRangeLocked() (top, bottom terminal.RowID) {
	height := terminal.RowID(max(c.height, 0))
	liveTop := c.tail - min(c.tail, height)
	top = liveTop
	if !c.follow {
		top = min(c.scrollTop, liveTop)
	}
	bottom = min(top+height, c.tail)
	return top, bottom
}

// Following reports whether the viewport tracks the tail.
func (c *Cache) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.follow
}

// Follow returns the viewport to the tail.
func (c *Cache) Follow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follow = true
	c.notifyLocked()
}

// ScrollTo anchors the viewport top at row. Scrolling to or past the
// live window resumes following. Rows below the known base are
// reachable only when something was loaded there.
func (c *Cache) ScrollTo(row terminal.RowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scrollToLocked(row)
	c.notifyLocked()
}

// ScrollBy moves the viewport by lines; negative moves into history.
func (c *Cache) ScrollBy(lines int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	top, _ := c.viewRangeLocked()
	target := int64(top) + int64(lines)
	c.scrollToLocked(terminal.RowID(max(target, 0)))
	c.notifyLocked()
}

func (c *Cache) scrollToLocked(row terminal.RowID) {
	height := terminal.RowID(max(c.height, 0))
	liveTop := c.tail - min(c.tail, height)
	if row >= liveTop {
		c.follow = true
		return
	}
	lowest := c.knownBase
	if c.anchored {
		lowest = min(lowest, c.anchor)
	}
	for id, s := range c.slots {
		if id < lowest && s.state == SlotLoaded {
			lowest = id
		}
	}
	c.follow = false
	c.scrollTop = max(row, min(lowest, liveTop))
}
