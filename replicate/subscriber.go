// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replicate

import (
	"errors"
	"log/slog"

	"github.com/bureau-foundation/termsync/history"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

// Source is the part of the history store a subscriber reads.
// *history.Store implements it.
type Source interface {
	Bounds() history.Bounds
	Live() *terminal.Grid
	DeltasSince(seq terminal.Seq) ([]terminal.Delta, error)
	ReadRows(start terminal.RowID, count int) (history.Rows, error)
}

// Cursor is the host's record of what one viewer has been sent.
type Cursor struct {
	// Sent is the highest delta sequence sent on the delta lane, or
	// the AsOf of the most recent snapshot.
	Sent terminal.Seq
	// Acked is the highest sequence the viewer has acknowledged.
	Acked terminal.Seq
	// KnownBase is the lowest row the viewer has been told exists.
	// It only increases.
	KnownBase terminal.RowID
	// Delivered is one past the highest row the viewer has been sent
	// content for.
	Delivered terminal.RowID
	// Snapshotted is false until the first SnapshotComplete.
	Snapshotted bool
}

// Subscriber schedules frames for one viewer. It is not safe for
// concurrent use; the host drives each subscriber from one goroutine.
type Subscriber struct {
	source Source
	config Config
	logger *slog.Logger

	cursor Cursor

	needSnapshot bool
	lastCols     int
	lastHeight   int

	backfill backfillQueue
}

// NewSubscriber returns a subscriber whose first Tick sends the grid
// dimensions and the initial snapshot.
func NewSubscriber(source Source, config Config) *Subscriber {
	config = config.withDefaults()
	bounds := source.Bounds()
	return &Subscriber{
		source:       source,
		config:       config,
		logger:       config.Logger,
		cursor:       Cursor{KnownBase: bounds.Floor},
		needSnapshot: true,
		backfill:     newBackfillQueue(config.RequestMemory),
	}
}

// Cursor returns a copy of the subscriber's cursor.
func (s *Subscriber) Cursor() Cursor { return s.cursor }

// Ack records the viewer's acknowledged sequence. Acks never move the
// cursor backwards.
func (s *Subscriber) Ack(seq terminal.Seq) {
	s.cursor.Acked = max(s.cursor.Acked, seq)
}

// Resnapshot schedules a fresh initial snapshot on the next Tick.
func (s *Subscriber) Resnapshot() {
	s.needSnapshot = true
}

// Pending reports whether the subscriber has work beyond the delta
// lane: a snapshot to send or backfill chunks queued.
func (s *Subscriber) Pending() bool {
	return s.needSnapshot || s.backfill.len() > 0
}

// Tick returns the frames to send now, in order: grid dimensions if
// they changed, every pending delta batch, the initial snapshot if one
// is due, and at most one backfill chunk.
func (s *Subscriber) Tick() []protocol.Frame {
	var frames []protocol.Frame
	bounds := s.source.Bounds()
	if bounds.Cols != s.lastCols || bounds.Height != s.lastHeight {
		s.lastCols, s.lastHeight = bounds.Cols, bounds.Height
		frames = append(frames, protocol.Grid{
			VisibleRows: bounds.Height,
			Cols:        bounds.Cols,
			Floor:       bounds.Floor,
			Tail:        bounds.Tail,
		})
	}

	frames = s.deltaLane(frames)
	if s.needSnapshot {
		frames = s.snapshotLane(frames)
	}
	frames = s.backfillLane(frames)
	return frames
}

func (s *Subscriber) deltaLane(frames []protocol.Frame) []protocol.Frame {
	if !s.cursor.Snapshotted || s.needSnapshot || s.config.LossyLive {
		return frames
	}
	deltas, err := s.source.DeltasSince(s.cursor.Sent)
	if errors.Is(err, history.ErrCompacted) {
		s.logger.Info("subscriber position compacted, resending snapshot",
			"sent", s.cursor.Sent,
		)
		s.needSnapshot = true
		return frames
	}
	if err != nil {
		s.logger.Warn("reading deltas", "sent", s.cursor.Sent, "error", err)
		return frames
	}
	for len(deltas) > 0 {
		n := min(len(deltas), s.config.MaxUpdatesPerFrame)
		batch := deltas[:n]
		deltas = deltas[n:]
		for _, d := range batch {
			s.observe(d)
		}
		s.cursor.Sent = batch[n-1].Seq
		frames = append(frames, protocol.DeltaBatch{Deltas: batch})
	}
	return frames
}

// observe advances the cursor's row bookkeeping for a sent delta.
func (s *Subscriber) observe(d terminal.Delta) {
	if d.Kind == terminal.DeltaTrim {
		s.cursor.KnownBase = max(s.cursor.KnownBase, d.Row)
		return
	}
	if _, end := d.Rows(); end > s.cursor.Delivered {
		s.cursor.Delivered = end
	}
}

func (s *Subscriber) snapshotLane(frames []protocol.Frame) []protocol.Frame {
	bounds := s.source.Bounds()
	count := s.config.InitialSnapshotRows
	start := bounds.Floor
	if bounds.Tail > start+terminal.RowID(count) {
		start = bounds.Tail - terminal.RowID(count)
	}

	rows, err := s.source.ReadRows(start, int(bounds.Tail-start))
	if errors.Is(err, history.ErrNotAvailable) {
		// The floor moved between Bounds and ReadRows; the live
		// window is always readable.
		start = bounds.Top
		rows, err = s.source.ReadRows(start, int(bounds.Tail-start))
	}
	if err != nil && !errors.Is(err, history.ErrOutOfRange) {
		s.logger.Warn("reading snapshot rows", "start", start, "error", err)
		return frames
	}
	if errors.Is(err, history.ErrOutOfRange) {
		// Nothing written yet.
		rows = history.Rows{Start: start, AsOf: bounds.Head}
	}

	live := s.source.Live().State()
	cursor := live.Cursor
	first := protocol.Snapshot{
		AsOf:      rows.AsOf,
		Cursor:    &cursor,
		CursorSeq: live.CursorSeq,
		Styles:    live.Styles,
	}

	// Newest chunk first.
	chunk := s.config.SnapshotChunkRows
	end := len(rows.Rows)
	if end == 0 {
		frames = append(frames, first)
	}
	for end > 0 {
		begin := max(end-chunk, 0)
		frame := protocol.Snapshot{AsOf: rows.AsOf, Rows: rows.Rows[begin:end]}
		if end == len(rows.Rows) {
			first.Rows = frame.Rows
			frame = first
		}
		frames = append(frames, frame)
		end = begin
	}

	bottom := rows.Start + terminal.RowID(len(rows.Rows))
	floor := max(bounds.Floor, s.cursor.KnownBase)
	frames = append(frames, protocol.SnapshotComplete{
		AsOf:   rows.AsOf,
		Top:    rows.Start,
		Bottom: bottom,
		Floor:  floor,
	})

	s.cursor.Sent = rows.AsOf
	s.cursor.KnownBase = floor
	s.cursor.Delivered = max(s.cursor.Delivered, bottom)
	s.cursor.Snapshotted = true
	s.needSnapshot = false
	s.logger.Debug("snapshot sent",
		"as_of", rows.AsOf,
		"top", rows.Start,
		"bottom", bottom,
	)
	return frames
}
