// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/termsync/terminal"
)

// Bounds summarizes what a Store currently holds.
type Bounds struct {
	// Floor is the lowest row that can still be read.
	Floor terminal.RowID
	// Top is the first row of the live window.
	Top terminal.RowID
	// Tail is one past the newest row; the next new row gets this id.
	Tail terminal.RowID
	// Head is the sequence of the newest delta.
	Head terminal.Seq
	// Cols and Height are the live window dimensions.
	Cols   int
	Height int
}

// Store is the history log for one terminal session. Create it with
// New. Append must be called from one goroutine at a time; every other
// method is safe for concurrent use.
type Store struct {
	config Config
	logger *slog.Logger

	// writeMu serializes writers so the snapshot payload can be
	// encoded outside mu.
	writeMu sync.Mutex

	mu    sync.RWMutex
	grid  *terminal.Grid
	head  terminal.Seq
	floor terminal.RowID

	// deltas[i].Seq == deltas[0].Seq+i. Only appended to or
	// resliced from the front.
	deltas []terminal.Delta
	// index holds the snapshots ordered by Seq; Top is
	// non-decreasing. Only appended to or resliced from the front.
	index []*entry

	deltaBytes    int64
	snapshotBytes int64

	// covered is one past the highest row any snapshot has held.
	covered        terminal.RowID
	sinceSnapshot  int
	lastSnapshotAt time.Time

	changed chan struct{}
}

// New creates a Store with an empty grid and an initial snapshot at
// sequence zero.
func New(config Config) *Store {
	config = config.withDefaults()
	s := &Store{
		config:  config,
		logger:  config.Logger,
		grid:    terminal.NewGrid(config.Cols, config.Height),
		changed: make(chan struct{}),
	}
	if _, err := s.Snapshot(); err != nil {
		// An empty grid always encodes.
		panic("history: initial snapshot: " + err.Error())
	}
	return s
}

// Append assigns the next sequence to d, applies it to the live grid
// and records it. Snapshots and eviction that the append triggers run
// before it returns.
func (s *Store) Append(d terminal.Delta) (terminal.Seq, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.wouldUncover(d) {
		if err := s.snapshotLocked("coverage"); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	seq := s.appendLocked(d)
	s.mu.Unlock()

	now := s.config.Clock.Now()
	trigger := ""
	switch {
	case s.sinceSnapshot >= s.config.SnapshotEvery:
		trigger = "cadence"
	case s.config.SnapshotInterval > 0 && now.Sub(s.lastSnapshotAt) >= s.config.SnapshotInterval:
		trigger = "interval"
	}
	if trigger != "" {
		if err := s.snapshotLocked(trigger); err != nil {
			return seq, err
		}
	}

	s.evict()
	return seq, nil
}

// appendLocked records d under mu and wakes waiters.
func (s *Store) appendLocked(d terminal.Delta) terminal.Seq {
	s.head++
	d.Seq = s.head
	s.grid.Apply(d)
	s.deltas = append(s.deltas, d)
	s.deltaBytes += int64(d.Size())
	s.sinceSnapshot++
	close(s.changed)
	s.changed = make(chan struct{})
	return d.Seq
}

// wouldUncover reports whether applying d would push a row that no
// snapshot holds out of the live window. Only the writer calls it, so
// reading the grid without mu is safe.
func (s *Store) wouldUncover(d terminal.Delta) bool {
	grid := s.grid
	var newTop terminal.RowID
	switch d.Kind {
	case terminal.DeltaCell, terminal.DeltaRow, terminal.DeltaSegment, terminal.DeltaRect:
		_, end := d.Rows()
		if end <= grid.Bottom() {
			return false
		}
		newTop = end - terminal.RowID(min(int(end), grid.Height()))
	case terminal.DeltaResize:
		if d.Height <= 0 || d.Height >= grid.Len() {
			return false
		}
		newTop = grid.Bottom() - terminal.RowID(d.Height)
	default:
		return false
	}
	leaving := min(newTop, grid.Bottom())
	return leaving > grid.Top() && s.covered < leaving
}

// Snapshot captures the live window now.
func (s *Store) Snapshot() (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.snapshotLocked("manual"); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[len(s.index)-1].Snapshot, nil
}

// snapshotLocked encodes the live grid and appends it to the index.
// Called with writeMu held: the grid cannot change underneath, so the
// encoding runs without mu.
func (s *Store) snapshotLocked(trigger string) error {
	state := s.grid.State()
	payload, digest, err := EncodeState(state, s.config.Compression)
	if err != nil {
		return err
	}
	now := s.config.Clock.Now()
	snapshot := &entry{
		Snapshot: Snapshot{
			Seq:    state.Seq,
			Top:    state.Top,
			Bottom: state.Top + terminal.RowID(len(state.Rows)),
			Taken:  now,
			Digest: digest,
			Size:   len(payload),
		},
		payload: payload,
	}

	s.mu.Lock()
	if n := len(s.index); n > 0 && s.index[n-1].Seq == snapshot.Seq {
		// Nothing changed since the previous snapshot; refresh it in
		// place of adding a duplicate.
		s.snapshotBytes -= int64(s.index[n-1].Size)
		s.index = append(s.index[:n-1:n-1], snapshot)
	} else {
		s.index = append(s.index, snapshot)
	}
	s.snapshotBytes += int64(snapshot.Size)
	s.covered = max(s.covered, snapshot.Bottom)
	s.mu.Unlock()

	s.sinceSnapshot = 0
	s.lastSnapshotAt = now
	s.config.Metrics.SnapshotTaken(trigger)
	s.logger.Debug("history snapshot",
		"trigger", trigger,
		"seq", snapshot.Seq,
		"top", snapshot.Top,
		"bottom", snapshot.Bottom,
		"bytes", snapshot.Size,
	)
	return nil
}

// evict drops the oldest snapshots while any limit is exceeded, then
// announces the new floor with a Trim delta. Called with writeMu held.
func (s *Store) evict() {
	s.mu.Lock()
	var dropped int
	for len(s.index) > 1 && s.overLimitLocked() {
		successor := s.index[1]
		cut := 0
		for cut < len(s.deltas) && s.deltas[cut].Seq <= successor.Seq {
			s.deltaBytes -= int64(s.deltas[cut].Size())
			cut++
		}
		s.snapshotBytes -= int64(s.index[0].Size)
		// Clone rather than reslice so the evicted payloads can be
		// collected once readers holding older views finish.
		s.deltas = slices.Clone(s.deltas[cut:])
		s.index = slices.Clone(s.index[1:])
		dropped += int(successor.Top - s.floor)
		s.floor = successor.Top
	}
	var trimSeq terminal.Seq
	if dropped > 0 {
		trimSeq = s.appendLocked(terminal.Delta{Kind: terminal.DeltaTrim, Row: s.floor})
	}
	rows := int(s.grid.Bottom() - s.floor)
	bytes := s.deltaBytes + s.snapshotBytes
	floor := s.floor
	s.mu.Unlock()

	s.config.Metrics.SetHistorySize(rows, bytes)
	if dropped > 0 {
		s.config.Metrics.RowsEvicted(dropped)
		s.logger.Info("history evicted",
			"floor", floor,
			"rows_dropped", dropped,
			"trim_seq", trimSeq,
			"retained_rows", rows,
			"retained_bytes", bytes,
		)
	}
}

func (s *Store) overLimitLocked() bool {
	if int(s.grid.Bottom()-s.floor) > s.config.MaxRows {
		return true
	}
	if s.deltaBytes+s.snapshotBytes > s.config.MaxBytes {
		return true
	}
	return s.config.MaxSnapshots > 0 && len(s.index) > s.config.MaxSnapshots
}

// Bounds returns the current floor, window, tail and head.
func (s *Store) Bounds() Bounds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundsLocked()
}

func (s *Store) boundsLocked() Bounds {
	return Bounds{
		Floor:  s.floor,
		Top:    s.grid.Top(),
		Tail:   s.grid.Bottom(),
		Head:   s.head,
		Cols:   s.grid.Cols(),
		Height: s.grid.Height(),
	}
}

// Live returns a copy of the live grid.
func (s *Store) Live() *terminal.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grid.Clone()
}

// Changed returns a channel that is closed by the next Append.
func (s *Store) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Snapshots returns the retained snapshots, oldest first.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.index))
	for i, e := range s.index {
		out[i] = e.Snapshot
	}
	return out
}

// view is a point-in-time copy of the store's slices.
type view struct {
	index  []*entry
	deltas []terminal.Delta
	bounds Bounds
}

func (s *Store) capture() view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return view{index: s.index, deltas: s.deltas, bounds: s.boundsLocked()}
}

// deltasAfter returns the deltas in v with sequence greater than seq.
func (v view) deltasAfter(seq terminal.Seq) []terminal.Delta {
	if len(v.deltas) == 0 {
		return nil
	}
	first := v.deltas[0].Seq
	if seq+1 <= first {
		return v.deltas
	}
	offset := int(seq + 1 - first)
	if offset >= len(v.deltas) {
		return nil
	}
	return v.deltas[offset:]
}

// DeltasSince returns every retained delta with sequence greater than
// seq, oldest first. The returned deltas share cell storage with the
// store and must not be modified.
func (s *Store) DeltasSince(seq terminal.Seq) ([]terminal.Delta, error) {
	v := s.capture()
	if seq > v.bounds.Head {
		return nil, fmt.Errorf("deltas since %d: head is %d: %w", seq, v.bounds.Head, ErrOutOfRange)
	}
	if seq == v.bounds.Head {
		return nil, nil
	}
	if len(v.deltas) == 0 || v.deltas[0].Seq > seq+1 {
		return nil, fmt.Errorf("deltas since %d: %w", seq, ErrCompacted)
	}
	return v.deltasAfter(seq), nil
}

// Reconstruct returns the grid as it was immediately after seq was
// applied.
func (s *Store) Reconstruct(seq terminal.Seq) (*terminal.Grid, error) {
	v := s.capture()
	if seq > v.bounds.Head {
		return nil, fmt.Errorf("reconstruct seq %d: head is %d: %w", seq, v.bounds.Head, ErrOutOfRange)
	}
	position := sort.Search(len(v.index), func(i int) bool { return v.index[i].Seq > seq }) - 1
	if position < 0 {
		return nil, fmt.Errorf("reconstruct seq %d: %w", seq, ErrNotAvailable)
	}
	start := v.index[position]
	grid, err := start.grid()
	if err != nil {
		return nil, err
	}
	for _, d := range v.deltasAfter(start.Seq) {
		if d.Seq > seq {
			break
		}
		grid.Apply(d)
	}
	return grid, nil
}

// GetFromLine returns the reconstructed window in which row first
// appears after the latest snapshot whose top is at or below row. It
// never returns the live grid in place of an older state: when no
// retained data reaches row the result is ErrNotAvailable.
func (s *Store) GetFromLine(row terminal.RowID) (*terminal.Grid, error) {
	return s.GetWindow(row, 1)
}

// GetWindow is GetFromLine replayed further forward: once row appears,
// replay continues until the window holds rows rows from row onward or
// the log runs out. It stops before any delta that would scroll row out
// of the window, so the result always contains row.
func (s *Store) GetWindow(row terminal.RowID, rows int) (*terminal.Grid, error) {
	v := s.capture()
	if row >= v.bounds.Tail {
		return nil, fmt.Errorf("row %d: tail is %d: %w", row, v.bounds.Tail, ErrOutOfRange)
	}
	if row < v.bounds.Floor {
		return nil, fmt.Errorf("row %d below floor %d: %w", row, v.bounds.Floor, ErrNotAvailable)
	}
	start, ok := v.covering(row)
	if !ok {
		return nil, fmt.Errorf("row %d: no snapshot at or below it: %w", row, ErrNotAvailable)
	}
	grid, err := start.grid()
	if err != nil {
		return nil, err
	}

	want := row + terminal.RowID(max(rows, 1))
	found := grid.Contains(row)
	if found && grid.Bottom() >= want {
		return grid, nil
	}
	for _, d := range v.deltasAfter(start.Seq) {
		if found && scrollsOut(grid, d, row) {
			break
		}
		grid.Apply(d)
		if grid.Contains(row) {
			found = true
			if grid.Bottom() >= want {
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("row %d: log exhausted before it appeared: %w", row, ErrNotAvailable)
	}
	return grid, nil
}

// scrollsOut reports whether applying d to grid would push row above
// the window.
func scrollsOut(grid *terminal.Grid, d terminal.Delta, row terminal.RowID) bool {
	if d.Kind == terminal.DeltaResize {
		return true
	}
	_, end := d.Rows()
	return end > row+terminal.RowID(grid.Height())
}

// covering finds the latest snapshot with Top <= row.
func (v view) covering(row terminal.RowID) (*entry, bool) {
	position := sort.Search(len(v.index), func(i int) bool { return v.index[i].Top > row }) - 1
	if position < 0 {
		return nil, false
	}
	return v.index[position], true
}

// Rows is the result of ReadRows.
type Rows struct {
	// Start is the id of Rows[0].
	Start terminal.RowID
	Rows  []terminal.Row
	// AsOf is the head sequence the read is consistent with.
	AsOf terminal.Seq
}

// ReadRows returns the final content of up to count rows starting at
// start: a row that has left the live window is returned as it was
// when it left, a live row as it is now. start must be at or above the
// floor (ErrNotAvailable otherwise) and below the tail (ErrOutOfRange
// otherwise); the range is clipped at the tail.
func (s *Store) ReadRows(start terminal.RowID, count int) (Rows, error) {
	if count <= 0 {
		return Rows{Start: start}, nil
	}

	s.mu.RLock()
	bounds := s.boundsLocked()
	if start >= bounds.Top && start < bounds.Tail {
		// Entirely live: read straight from the grid.
		rows := s.grid.Rows(start, count)
		s.mu.RUnlock()
		return Rows{Start: start, Rows: rows, AsOf: bounds.Head}, nil
	}
	v := view{index: s.index, deltas: s.deltas, bounds: bounds}
	s.mu.RUnlock()

	if start >= bounds.Tail {
		return Rows{}, fmt.Errorf("read rows at %d: tail is %d: %w", start, bounds.Tail, ErrOutOfRange)
	}
	if start < bounds.Floor {
		return Rows{}, fmt.Errorf("read rows at %d below floor %d: %w", start, bounds.Floor, ErrNotAvailable)
	}
	end := min(start+terminal.RowID(count), bounds.Tail)

	origin, ok := v.covering(start)
	if !ok {
		return Rows{}, fmt.Errorf("read rows at %d: no snapshot at or below it: %w", start, ErrNotAvailable)
	}
	grid, err := origin.grid()
	if err != nil {
		return Rows{}, err
	}

	captured := make([]terminal.Row, end-start)
	have := make([]bool, end-start)
	capture := func(row terminal.Row) {
		if row.ID >= start && row.ID < end {
			captured[row.ID-start] = row.Clone()
			have[row.ID-start] = true
		}
	}
	for _, d := range v.deltasAfter(origin.Seq) {
		if grid.Top() >= end {
			break
		}
		grid.ApplyEvicting(d, capture)
	}
	for _, row := range grid.Rows(start, int(end-start)) {
		if row.ID >= end {
			break
		}
		if !have[row.ID-start] {
			captured[row.ID-start] = row
			have[row.ID-start] = true
		}
	}
	for i, ok := range have {
		if !ok {
			return Rows{}, fmt.Errorf("read rows: row %d never materialized during replay: %w", start+terminal.RowID(i), ErrNotAvailable)
		}
	}
	return Rows{Start: start, Rows: captured, AsOf: bounds.Head}, nil
}
