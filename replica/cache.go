// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

// Slot is the state of one referenced row.
type Slot uint8

const (
	// SlotPending rows are referenced but have no content yet.
	SlotPending Slot = iota + 1
	// SlotLoaded rows hold content.
	SlotLoaded
	// SlotMissing rows are permanently gone from the host.
	SlotMissing
)

func (s Slot) String() string {
	switch s {
	case SlotPending:
		return "pending"
	case SlotLoaded:
		return "loaded"
	case SlotMissing:
		return "missing"
	default:
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
}

type slot struct {
	state Slot
	row   terminal.Row
}

type request struct {
	id       uint64
	start    terminal.RowID
	end      terminal.RowID
	sentAt   time.Time
	attempts int
}

// Cache is a viewer's replica of one host session. It is safe for
// concurrent use: the receive loop applies frames while the renderer
// reads viewports.
type Cache struct {
	config  Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	session string
	cols    int
	height  int
	tail    terminal.RowID
	applied terminal.Seq
	slots   map[terminal.RowID]*slot

	knownBase terminal.RowID
	anchor    terminal.RowID
	anchored  bool

	cursor    terminal.Cursor
	cursorSeq terminal.Seq
	styles    map[terminal.StyleID]terminal.Style

	pending map[uint64]*request
	nextID  uint64
	retryAt time.Time
	backoff time.Duration

	follow    bool
	scrollTop terminal.RowID

	changed chan struct{}
}

// New returns an empty cache in follow mode.
func New(config Config) *Cache {
	config = config.withDefaults()
	return &Cache{
		config:  config,
		logger:  config.Logger,
		limiter: rate.NewLimiter(rate.Every(config.RequestInterval), 1),
		slots:   make(map[terminal.RowID]*slot),
		styles:  make(map[terminal.StyleID]terminal.Style),
		pending: make(map[uint64]*request),
		follow:  true,
		changed: make(chan struct{}),
	}
}

// Changed returns a channel closed by the next change to the cache's
// content or scroll position.
func (c *Cache) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *Cache) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Handle applies a host frame and reports whether the cache consumes
// frames of that kind.
func (c *Cache) Handle(frame protocol.Frame) bool {
	switch f := frame.(type) {
	case protocol.Hello:
		c.ApplyHello(f)
	case protocol.Grid:
		c.ApplyGrid(f)
	case protocol.Snapshot:
		c.ApplySnapshot(f)
	case protocol.SnapshotComplete:
		c.ApplySnapshotComplete(f)
	case protocol.DeltaBatch:
		c.mu.Lock()
		for _, d := range f.Deltas {
			c.applyLocked(d)
		}
		c.notifyLocked()
		c.mu.Unlock()
	case protocol.HistoryBackfill:
		c.ApplyBackfill(f)
	default:
		return false
	}
	return true
}

// ApplyHello records the host's session and floor. A Hello for a
// different session discards everything cached for the previous one.
// Every Hello starts a new link, so requests sent on the old one are
// forgotten and their rows are requested again from scratch.
func (c *Cache) ApplyHello(hello protocol.Hello) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.pending)
	if c.session != "" && hello.Session != c.session {
		c.logger.Info("new host session, discarding replica",
			"previous", c.session,
			"session", hello.Session,
		)
		c.slots = make(map[terminal.RowID]*slot)
		c.styles = make(map[terminal.StyleID]terminal.Style)
		c.pending = make(map[uint64]*request)
		c.tail, c.applied, c.knownBase = 0, 0, 0
		c.cursor, c.cursorSeq = terminal.Cursor{}, 0
		c.anchored = false
		c.follow = true
	}
	c.session = hello.Session
	c.raiseBaseLocked(hello.Floor)
	c.tail = max(c.tail, hello.Tail)
	c.notifyLocked()
}

// ApplyGrid records the live window dimensions.
func (c *Cache) ApplyGrid(grid protocol.Grid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if grid.Cols > 0 {
		c.cols = grid.Cols
	}
	if grid.VisibleRows > 0 {
		c.height = grid.VisibleRows
	}
	c.raiseBaseLocked(grid.Floor)
	c.tail = max(c.tail, grid.Tail)
	c.notifyLocked()
}

// ApplySnapshot merges one snapshot chunk.
func (c *Cache) ApplySnapshot(snapshot protocol.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range snapshot.Rows {
		c.mergeLocked(row)
	}
	if snapshot.Cursor != nil && snapshot.CursorSeq >= c.cursorSeq {
		c.cursor = *snapshot.Cursor
		c.cursorSeq = snapshot.CursorSeq
	}
	for _, style := range snapshot.Styles {
		c.styles[style.ID] = style
	}
	c.notifyLocked()
}

// ApplySnapshotComplete records the end of a snapshot.
func (c *Cache) ApplySnapshotComplete(complete protocol.SnapshotComplete) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raiseBaseLocked(complete.Floor)
	c.tail = max(c.tail, complete.Bottom)
	c.applied = max(c.applied, complete.AsOf)
	c.notifyLocked()
}

// ApplyState merges a full window state, as carried by a resync
// snapshot.
func (c *Cache) ApplyState(state terminal.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state.Cols > 0 {
		c.cols = state.Cols
	}
	if state.Height > 0 {
		c.height = state.Height
	}
	c.raiseBaseLocked(state.Floor)
	for i, row := range state.Rows {
		row.ID = state.Top + terminal.RowID(i)
		c.mergeLocked(row)
	}
	if state.CursorSeq >= c.cursorSeq {
		c.cursor = state.Cursor
		c.cursorSeq = state.CursorSeq
	}
	for _, style := range state.Styles {
		c.styles[style.ID] = style
	}
	c.applied = max(c.applied, state.Seq)
	c.notifyLocked()
}

// Apply applies one delta.
func (c *Cache) Apply(d terminal.Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(d)
	c.notifyLocked()
}

func (c *Cache) applyLocked(d terminal.Delta) {
	switch d.Kind {
	case terminal.DeltaTrim:
		c.trimLocked(d.Row)
	case terminal.DeltaStyle:
		if d.Style.ID != 0 {
			c.styles[d.Style.ID] = d.Style
		}
	case terminal.DeltaCursor:
		if d.Seq > c.cursorSeq {
			c.cursor = d.Cursor
			c.cursorSeq = d.Seq
		}
	case terminal.DeltaResize:
		if d.Width > 0 {
			c.cols = d.Width
		}
		if d.Height > 0 {
			c.height = d.Height
		}
	default:
		d.Writes(c.cols, func(row terminal.RowID, col int, cells []terminal.Cell) {
			c.noteBelowBaseLocked(row)
			s := c.slotLocked(row, col+len(cells))
			if s.row.Write(col, cells, d.Seq) {
				s.state = SlotLoaded
			}
			c.tail = max(c.tail, row+1)
		})
	}
	c.applied = max(c.applied, d.Seq)
}

// ApplyTrim records that the host has evicted every row below floor.
func (c *Cache) ApplyTrim(floor terminal.RowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trimLocked(floor)
	c.notifyLocked()
}

// trimLocked raises the known base to floor, marks Pending rows below
// it Missing and resolves the overlapping part of every request in
// flight.
func (c *Cache) trimLocked(floor terminal.RowID) {
	c.raiseBaseLocked(floor)
	missing := 0
	for id, s := range c.slots {
		if id < floor && s.state == SlotPending {
			s.state = SlotMissing
			missing++
		}
	}
	for id, r := range c.pending {
		if r.start >= floor {
			continue
		}
		if r.end <= floor {
			delete(c.pending, id)
			continue
		}
		r.start = floor
	}
	if missing > 0 {
		c.config.Metrics.RowsMissing(missing)
	}
}

// ApplyBackfill applies one reply chunk. Delivered rows are merged
// whether or not the request is still tracked.
func (c *Cache) ApplyBackfill(chunk protocol.HistoryBackfill) {
	now := c.config.Clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch chunk.Availability {
	case protocol.Delivered:
		for _, row := range chunk.Rows {
			c.mergeLocked(row)
		}
		c.backoff = 0
	case protocol.PermanentlyUnavailable:
		missing := 0
		for id := chunk.StartRow; id < chunk.End(); id++ {
			s := c.slotLocked(id, 0)
			if s.state != SlotLoaded {
				s.state = SlotMissing
				missing++
			}
		}
		if missing > 0 {
			c.config.Metrics.RowsMissing(missing)
		}
		c.trimLocked(chunk.End())
	case protocol.TransientEmpty:
		c.backoff = min(max(2*c.backoff, c.config.RequestInterval), c.config.RequestTimeout)
		c.retryAt = now.Add(c.backoff)
		c.logger.Debug("backfill transiently empty",
			"request_id", chunk.RequestID,
			"start_row", chunk.StartRow,
			"retry_in", c.backoff,
		)
	}

	if r, ok := c.pending[chunk.RequestID]; ok {
		if chunk.More {
			r.start = max(r.start, chunk.End())
			r.sentAt = now
		} else {
			delete(c.pending, chunk.RequestID)
		}
	}
	c.notifyLocked()
}

// raiseBaseLocked moves the known base up to base. It never moves it
// down.
func (c *Cache) raiseBaseLocked(base terminal.RowID) {
	if base > c.knownBase {
		c.knownBase = base
	}
}

// noteBelowBaseLocked records a re-anchor point when content arrives
// for a row below the known base.
func (c *Cache) noteBelowBaseLocked(row terminal.RowID) {
	if row >= c.knownBase {
		return
	}
	if !c.anchored || row < c.anchor {
		c.logger.Info("content below known base, re-anchoring gap detection",
			"row", row,
			"known_base", c.knownBase,
		)
		c.anchor = row
		c.anchored = true
	}
}

func (c *Cache) mergeLocked(row terminal.Row) {
	c.noteBelowBaseLocked(row.ID)
	s := c.slotLocked(row.ID, len(row.Cells))
	s.row.Merge(row)
	s.state = SlotLoaded
	c.tail = max(c.tail, row.ID+1)
}

// slotLocked returns the slot for id, creating a Pending one, with at
// least width cells.
func (c *Cache) slotLocked(id terminal.RowID, width int) *slot {
	width = max(width, c.cols)
	s, ok := c.slots[id]
	if !ok {
		s = &slot{state: SlotPending, row: terminal.Row{ID: id}}
		c.slots[id] = s
	}
	if len(s.row.Cells) < width {
		s.row.Cells = append(s.row.Cells, make([]terminal.Cell, width-len(s.row.Cells))...)
	}
	return s
}

// Slot returns the state of row and whether it has been referenced.
func (c *Cache) Slot(row terminal.RowID) (Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[row]
	if !ok {
		return 0, false
	}
	return s.state, true
}

// Row returns a copy of a Loaded row.
func (c *Cache) Row(id terminal.RowID) (terminal.Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[id]
	if !ok || s.state != SlotLoaded {
		return terminal.Row{}, false
	}
	return s.row.Clone(), true
}

// KnownBase returns the lowest row the viewer believes the host
// retains.
func (c *Cache) KnownBase() terminal.RowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knownBase
}

// Tail returns one past the highest row known to exist.
func (c *Cache) Tail() terminal.RowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail
}

// Applied returns the highest delta sequence applied, for Ack frames.
func (c *Cache) Applied() terminal.Seq {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applied
}

// InFlight returns the number of backfill requests awaiting replies.
func (c *Cache) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// pendingIDsLocked returns the in-flight request ids in issue order.
func (c *Cache) pendingIDsLocked() []uint64 {
	ids := make([]uint64, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
