// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/testutil"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newCache(t *testing.T, config Config) (*Cache, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	config.Clock = fake
	return New(config), fake
}

func textRow(id terminal.RowID, seq terminal.Seq) terminal.Row {
	cells := terminal.TextCells(fmt.Sprintf("line %d", id), 0)
	for i := range cells {
		cells[i].Seq = seq
	}
	return terminal.Row{ID: id, Cells: cells, Watermark: seq}
}

func textRows(start, end terminal.RowID) []terminal.Row {
	var rows []terminal.Row
	for id := start; id < end; id++ {
		rows = append(rows, textRow(id, terminal.Seq(id+1)))
	}
	return rows
}

func slotOf(t *testing.T, cache *Cache, row terminal.RowID) Slot {
	t.Helper()
	state, ok := cache.Slot(row)
	if !ok {
		t.Fatalf("row %d has no slot", row)
	}
	return state
}

func TestTransientEmptyKeepsRowsPending(t *testing.T) {
	t.Parallel()
	cache, fake := newCache(t, Config{})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 3, Cols: 10, Tail: 20})

	request, ok := cache.NextRequest()
	if !ok {
		t.Fatal("no request for an empty cache")
	}
	if request.StartRow != 0 || request.MaxRows != 20 {
		t.Fatalf("request = %+v, want rows [0,20)", request)
	}
	if state := slotOf(t, cache, 0); state != SlotPending {
		t.Errorf("requested row is %s, want pending", state)
	}

	cache.ApplyBackfill(protocol.HistoryBackfill{
		RequestID: request.RequestID, StartRow: 0, Count: 20, Availability: protocol.TransientEmpty,
	})
	if state := slotOf(t, cache, 0); state != SlotPending {
		t.Errorf("row after TransientEmpty is %s, want pending", state)
	}
	if base := cache.KnownBase(); base != 0 {
		t.Errorf("known base moved to %d on TransientEmpty", base)
	}
	if _, ok := cache.NextRequest(); ok {
		t.Error("request issued before the retry backoff elapsed")
	}

	fake.Advance(250 * time.Millisecond)
	retry, ok := cache.NextRequest()
	if !ok || retry.StartRow != 0 || retry.RequestID == request.RequestID {
		t.Fatalf("retry = %+v, %v; want a new request from row 0", retry, ok)
	}
}

func TestBackfillSplitMarksMissingThenLoaded(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 3, Cols: 10, Tail: 20})
	request, ok := cache.NextRequest()
	if !ok {
		t.Fatal("no request")
	}

	cache.ApplyBackfill(protocol.HistoryBackfill{
		RequestID: request.RequestID, StartRow: 0, Count: 5, More: true,
		Availability: protocol.PermanentlyUnavailable,
	})
	for row := terminal.RowID(0); row < 5; row++ {
		if state := slotOf(t, cache, row); state != SlotMissing {
			t.Errorf("row %d is %s, want missing", row, state)
		}
	}
	if base := cache.KnownBase(); base != 5 {
		t.Errorf("known base = %d, want 5", base)
	}
	if cache.InFlight() != 1 {
		t.Errorf("in flight = %d, want the request still open", cache.InFlight())
	}

	cache.ApplyBackfill(protocol.HistoryBackfill{
		RequestID: request.RequestID, StartRow: 5, Count: 15, Rows: textRows(5, 20),
		Availability: protocol.Delivered,
	})
	for row := terminal.RowID(5); row < 20; row++ {
		if state := slotOf(t, cache, row); state != SlotLoaded {
			t.Errorf("row %d is %s, want loaded", row, state)
		}
	}
	if cache.InFlight() != 0 {
		t.Errorf("in flight = %d after the final chunk", cache.InFlight())
	}
	if row, _ := cache.Row(19); row.Text() != "line 19" {
		t.Errorf("row 19 text = %q", row.Text())
	}
}

func TestKnownBaseNeverDecreases(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	steps := []struct {
		name  string
		apply func()
		want  terminal.RowID
	}{
		{"hello", func() { cache.ApplyHello(protocol.Hello{Session: "s", Floor: 10}) }, 10},
		{"lower grid floor", func() { cache.ApplyGrid(protocol.Grid{VisibleRows: 5, Cols: 10, Floor: 5, Tail: 100}) }, 10},
		{"lower snapshot floor", func() { cache.ApplySnapshotComplete(protocol.SnapshotComplete{Floor: 3, Bottom: 100}) }, 10},
		{"trim", func() { cache.Apply(terminal.Delta{Seq: 1, Kind: terminal.DeltaTrim, Row: 20}) }, 20},
		{"older trim", func() { cache.Apply(terminal.Delta{Seq: 2, Kind: terminal.DeltaTrim, Row: 15}) }, 20},
		{"transient", func() {
			cache.ApplyBackfill(protocol.HistoryBackfill{StartRow: 20, Count: 30, Availability: protocol.TransientEmpty})
		}, 20},
		{"permanent below base", func() {
			cache.ApplyBackfill(protocol.HistoryBackfill{StartRow: 0, Count: 12, Availability: protocol.PermanentlyUnavailable})
		}, 20},
		{"permanent above base", func() {
			cache.ApplyBackfill(protocol.HistoryBackfill{StartRow: 20, Count: 10, Availability: protocol.PermanentlyUnavailable})
		}, 30},
	}
	for _, step := range steps {
		step.apply()
		if got := cache.KnownBase(); got != step.want {
			t.Errorf("after %s: known base = %d, want %d", step.name, got, step.want)
		}
	}
}

func TestContentBelowBaseReanchors(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	cache.ApplyHello(protocol.Hello{Session: "s", Floor: 50})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 10, Cols: 20, Floor: 50, Tail: 100})
	cache.ApplySnapshot(protocol.Snapshot{Rows: textRows(50, 100)})

	cache.Apply(terminal.Delta{Seq: 500, Kind: terminal.DeltaRow, Row: 30, Cells: terminal.TextCells("late", 0)})
	if state := slotOf(t, cache, 30); state != SlotLoaded {
		t.Fatalf("row below base is %s, want kept as loaded", state)
	}
	if base := cache.KnownBase(); base != 50 {
		t.Errorf("known base = %d, want 50", base)
	}

	request, ok := cache.NextRequest()
	if !ok {
		t.Fatal("no request after re-anchoring")
	}
	if request.StartRow != 31 {
		t.Errorf("request starts at %d, want 31 just above the re-anchor row", request.StartRow)
	}
}

func TestTrimResolvesRequestInFlight(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{RequestRows: 101})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 101, Cols: 20, Tail: 2000})
	// Everything in the lookahead window above row 950 is present.
	cache.ApplySnapshot(protocol.Snapshot{Rows: textRows(830, 950)})
	cache.ScrollTo(950)

	request, ok := cache.NextRequest()
	if !ok || request.StartRow != 950 || request.MaxRows != 101 {
		t.Fatalf("request = %+v, %v; want rows [950,1051)", request, ok)
	}

	cache.Apply(terminal.Delta{Seq: 1, Kind: terminal.DeltaTrim, Row: 1000})
	if cache.InFlight() != 1 {
		t.Errorf("straddling request resolved entirely; in flight = %d", cache.InFlight())
	}
	view := cache.Viewport()
	for _, row := range view.Rows {
		want := RowLoading
		if row.ID < 1000 {
			want = RowUnavailable
		}
		if row.State != want {
			t.Fatalf("row %d is %s, want %s", row.ID, row.State, want)
		}
	}

	cache.Apply(terminal.Delta{Seq: 2, Kind: terminal.DeltaTrim, Row: 1100})
	if cache.InFlight() != 0 {
		t.Errorf("request covered by the trim still in flight")
	}
}

func TestExpireRetriesThenMarksMissing(t *testing.T) {
	t.Parallel()
	cache, fake := newCache(t, Config{})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 5, Cols: 10, Tail: 10})
	first, ok := cache.NextRequest()
	if !ok {
		t.Fatal("no request")
	}

	if retries := cache.Expire(); len(retries) != 0 {
		t.Fatalf("expired before the timeout: %+v", retries)
	}
	previous := first.RequestID
	for attempt := 2; attempt <= 3; attempt++ {
		fake.Advance(5 * time.Second)
		retries := cache.Expire()
		if len(retries) != 1 {
			t.Fatalf("attempt %d: %d retries, want 1", attempt, len(retries))
		}
		if retries[0].RequestID == previous || retries[0].StartRow != first.StartRow {
			t.Errorf("attempt %d retry = %+v, want a new id for the same span", attempt, retries[0])
		}
		previous = retries[0].RequestID
	}

	fake.Advance(5 * time.Second)
	if retries := cache.Expire(); len(retries) != 0 {
		t.Fatalf("retried past MaxAttempts: %+v", retries)
	}
	if state := slotOf(t, cache, 0); state != SlotMissing {
		t.Errorf("abandoned row is %s, want missing", state)
	}
	if cache.InFlight() != 0 {
		t.Errorf("in flight = %d after abandoning", cache.InFlight())
	}

	// A late reply still wins over the local Missing mark.
	cache.ApplyBackfill(protocol.HistoryBackfill{
		RequestID: first.RequestID, StartRow: 0, Count: 2, Rows: textRows(0, 2), Availability: protocol.Delivered,
	})
	if state := slotOf(t, cache, 0); state != SlotLoaded {
		t.Errorf("row with late content is %s, want loaded", state)
	}
}

// Reconnecting to the same session forgets requests sent on the dead
// link: their rows are asked for again instead of being given up on.
func TestReconnectRestartsOutstandingRequests(t *testing.T) {
	t.Parallel()
	cache, fake := newCache(t, Config{})
	cache.ApplyHello(protocol.Hello{Session: "s"})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 5, Cols: 10, Tail: 10})
	first, ok := cache.NextRequest()
	if !ok {
		t.Fatal("no request")
	}
	for range 2 {
		fake.Advance(5 * time.Second)
		if retries := cache.Expire(); len(retries) != 1 {
			t.Fatalf("%d retries, want 1", len(retries))
		}
	}

	// The last attempt was in flight when the link dropped.
	cache.ApplyHello(protocol.Hello{Session: "s", Tail: 10})
	if cache.InFlight() != 0 {
		t.Fatalf("in flight = %d after reconnect, want 0", cache.InFlight())
	}
	fake.Advance(5 * time.Second)
	if retries := cache.Expire(); len(retries) != 0 {
		t.Errorf("expired requests from the old link: %+v", retries)
	}
	if state := slotOf(t, cache, first.StartRow); state != SlotPending {
		t.Errorf("row %d is %s after reconnect, want pending", first.StartRow, state)
	}
	again, ok := cache.NextRequest()
	if !ok || again.StartRow != first.StartRow {
		t.Errorf("NextRequest after reconnect = %+v (%v), want a fresh request at row %d", again, ok, first.StartRow)
	}
}

func TestNextRequestPacing(t *testing.T) {
	t.Parallel()
	cache, fake := newCache(t, Config{MaxPendingRequests: 2, RequestRows: 4})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 10, Cols: 10, Tail: 40})

	first, ok := cache.NextRequest()
	if !ok || first.StartRow != 0 || first.MaxRows != 4 {
		t.Fatalf("first = %+v, %v", first, ok)
	}
	if _, ok := cache.NextRequest(); ok {
		t.Error("second request was not paced")
	}
	fake.Advance(250 * time.Millisecond)
	second, ok := cache.NextRequest()
	if !ok || second.StartRow != 4 {
		t.Fatalf("second = %+v, %v; want the next span at row 4", second, ok)
	}
	fake.Advance(time.Second)
	if _, ok := cache.NextRequest(); ok {
		t.Error("request issued past MaxPendingRequests")
	}
}

func TestViewportPlaceholders(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	cache.ApplyHello(protocol.Hello{Session: "s", Floor: 2})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 4, Cols: 10, Floor: 2, Tail: 10})
	cache.ApplySnapshot(protocol.Snapshot{
		Rows:   textRows(8, 10),
		Cursor: &terminal.Cursor{Row: 9, Col: 3, Visible: true},
	})
	cache.ScrollTo(0)

	view := cache.Viewport()
	if view.Follow || view.Top != 2 {
		t.Fatalf("viewport top %d follow %v, want scrolling clamped at the known base", view.Top, view.Follow)
	}
	cache.ApplyBackfill(protocol.HistoryBackfill{StartRow: 2, Count: 2, Availability: protocol.PermanentlyUnavailable})

	view = cache.Viewport()
	states := []RowState{RowUnavailable, RowUnavailable, RowLoading, RowLoading}
	if len(view.Rows) != len(states) {
		t.Fatalf("viewport has %d rows, want %d", len(view.Rows), len(states))
	}
	for i, row := range view.Rows {
		if row.State != states[i] {
			t.Errorf("row %d is %s, want %s", row.ID, row.State, states[i])
		}
	}
	if view.Cursor.Visible {
		t.Error("cursor outside the viewport is visible")
	}

	cache.Follow()
	view = cache.Viewport()
	if view.Top != 6 || view.Rows[3].State != RowLoaded || view.Rows[3].Row.Text() != "line 9" {
		t.Errorf("follow viewport = top %d, last row %+v", view.Top, view.Rows[3])
	}
	if !view.Cursor.Visible || view.Cursor.Col != 3 {
		t.Errorf("cursor = %+v, want visible at column 3", view.Cursor)
	}
}

func TestScrollingPastLiveWindowResumesFollow(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	cache.ApplyGrid(protocol.Grid{VisibleRows: 5, Cols: 10, Tail: 100})
	cache.ScrollBy(-20)
	if cache.Following() {
		t.Fatal("scrolling up kept follow mode")
	}
	if top := cache.Viewport().Top; top != 75 {
		t.Errorf("top = %d, want 75", top)
	}

	// New output does not move a scrolled viewport.
	cache.Apply(terminal.Delta{Seq: 1, Kind: terminal.DeltaRow, Row: 120, Cells: terminal.TextCells("new", 0)})
	if top := cache.Viewport().Top; top != 75 {
		t.Errorf("top moved to %d while scrolled", top)
	}

	cache.ScrollBy(1000)
	if !cache.Following() {
		t.Error("scrolling past the live window did not resume follow")
	}
	if top := cache.Viewport().Top; top != 116 {
		t.Errorf("follow top = %d, want 116", top)
	}
}

func TestDeltaApplicationIsConfluent(t *testing.T) {
	t.Parallel()
	var deltas []terminal.Delta
	for i := 0; i < 200; i++ {
		seq := terminal.Seq(i + 1)
		row := terminal.RowID(i % 17)
		switch i % 3 {
		case 0:
			deltas = append(deltas, terminal.Delta{Seq: seq, Kind: terminal.DeltaRow, Row: row,
				Cells: terminal.TextCells(fmt.Sprintf("row write %d", i), 0)})
		case 1:
			deltas = append(deltas, terminal.Delta{Seq: seq, Kind: terminal.DeltaSegment, Row: row, Col: i % 7,
				Cells: terminal.TextCells("seg", terminal.StyleID(i%4))})
		default:
			deltas = append(deltas, terminal.Delta{Seq: seq, Kind: terminal.DeltaRect, Row: row, Col: 2, Width: 3, Height: 2,
				Fill: terminal.Cell{Rune: '#'}})
		}
	}

	ordered, _ := newCache(t, Config{})
	ordered.ApplyGrid(protocol.Grid{VisibleRows: 20, Cols: 16})
	for _, d := range deltas {
		ordered.Apply(d)
	}

	shuffled, _ := newCache(t, Config{})
	shuffled.ApplyGrid(protocol.Grid{VisibleRows: 20, Cols: 16})
	permuted := append([]terminal.Delta(nil), deltas...)
	// Every delta twice: duplicates must be no-ops.
	permuted = append(permuted, deltas...)
	random := rand.New(rand.NewPCG(7, 11))
	random.Shuffle(len(permuted), func(i, j int) { permuted[i], permuted[j] = permuted[j], permuted[i] })
	for _, d := range permuted {
		shuffled.Apply(d)
	}

	for row := terminal.RowID(0); row < 18; row++ {
		want, wantOK := ordered.Row(row)
		got, gotOK := shuffled.Row(row)
		if wantOK != gotOK || !want.Equal(got) {
			t.Errorf("row %d: ordered %q, shuffled %q", row, want.Text(), got.Text())
		}
	}
}

func TestNewSessionDiscardsReplica(t *testing.T) {
	t.Parallel()
	cache, _ := newCache(t, Config{})
	cache.ApplyHello(protocol.Hello{Session: "first", Floor: 4})
	cache.ApplySnapshot(protocol.Snapshot{Rows: textRows(4, 8)})
	changed := cache.Changed()

	cache.ApplyHello(protocol.Hello{Session: "second"})
	testutil.RequireClosed(t, changed, time.Second, "Changed not closed by Hello")
	if _, ok := cache.Slot(5); ok {
		t.Error("row from the previous session survived")
	}
	if base := cache.KnownBase(); base != 0 {
		t.Errorf("known base = %d, want reset for the new session", base)
	}
}
