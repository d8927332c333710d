// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/lib/testutil"
	"github.com/bureau-foundation/termsync/terminal"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func lineDelta(row int, text string) terminal.Delta {
	return terminal.Delta{Kind: terminal.DeltaRow, Row: terminal.RowID(row), Cells: terminal.TextCells(text, 0)}
}

func lineText(row int) string { return fmt.Sprintf("line %d", row) }

// newTestStore returns a store with time-based snapshots disabled so
// cadence is driven only by delta counts and coverage.
func newTestStore(t *testing.T, config Config) *Store {
	t.Helper()
	if config.Clock == nil {
		config.Clock = clock.Fake(epoch)
	}
	if config.SnapshotInterval == 0 {
		config.SnapshotInterval = -1
	}
	return New(config)
}

func appendLines(t *testing.T, store *Store, from, to int) {
	t.Helper()
	for row := from; row < to; row++ {
		if _, err := store.Append(lineDelta(row, lineText(row))); err != nil {
			t.Fatalf("Append row %d: %v", row, err)
		}
	}
}

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 5})
	for i := 1; i <= 10; i++ {
		seq, err := store.Append(lineDelta(i%5, "x"))
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if seq != terminal.Seq(i) {
			t.Fatalf("Append #%d returned seq %d", i, seq)
		}
	}
	if head := store.Bounds().Head; head != 10 {
		t.Errorf("Head = %d, want 10", head)
	}
}

func TestSnapshotPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	for _, compression := range []codec.CompressionTag{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()
			grid := terminal.NewGrid(30, 4)
			for i := 0; i < 6; i++ {
				grid.Apply(terminal.Delta{Seq: terminal.Seq(i + 1), Kind: terminal.DeltaRow, Row: terminal.RowID(i),
					Cells: terminal.TextCells(lineText(i), terminal.StyleID(i%2))})
			}
			state := grid.State()

			payload, digest, err := EncodeState(state, compression)
			if err != nil {
				t.Fatalf("EncodeState: %v", err)
			}
			decoded, err := DecodeState(payload, digest)
			if err != nil {
				t.Fatalf("DecodeState: %v", err)
			}

			original, err := codec.Marshal(state.Rows)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			restored, err := codec.Marshal(decoded.Rows)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(original) != string(restored) {
				t.Error("decoded rows are not byte-identical to the original")
			}
		})
	}
}

func TestDecodeStateDetectsCorruption(t *testing.T) {
	t.Parallel()
	payload, digest, err := EncodeState(terminal.NewGrid(10, 2).State(), codec.CompressionNone)
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	digest[0] ^= 0xff
	if _, err := DecodeState(payload, digest); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("DecodeState with bad digest: err = %v, want ErrCorruptSnapshot", err)
	}
}

// TestCadenceCoversEveryRow checks that every row that scrolled out of
// the window is held by at least one snapshot, even with count-based
// snapshots effectively disabled.
func TestCadenceCoversEveryRow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 5, SnapshotEvery: 1 << 20})
	appendLines(t, store, 0, 63)

	snapshots := store.Snapshots()
	bounds := store.Bounds()
	for row := terminal.RowID(0); row < bounds.Top; row++ {
		covered := false
		for _, snapshot := range snapshots {
			if snapshot.Covers(row) {
				covered = true
				break
			}
		}
		if !covered {
			t.Errorf("row %d left the window without being snapshotted", row)
		}
	}
}

func TestCadenceCountAndInterval(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(epoch)
	store := New(Config{Cols: 20, Height: 50, SnapshotEvery: 10, SnapshotInterval: time.Minute, Clock: fake})

	appendLines(t, store, 0, 25)
	if got := len(store.Snapshots()); got != 3 {
		t.Fatalf("after 25 deltas with SnapshotEvery=10: %d snapshots, want 3 (initial + 2)", got)
	}

	fake.Advance(2 * time.Minute)
	appendLines(t, store, 25, 26)
	snapshots := store.Snapshots()
	if got := len(snapshots); got != 4 {
		t.Fatalf("after interval elapsed: %d snapshots, want 4", got)
	}
	if last := snapshots[len(snapshots)-1]; last.Seq != 26 || !last.Taken.Equal(epoch.Add(2*time.Minute)) {
		t.Errorf("interval snapshot = %+v", last)
	}
}

// TestGetFromLineHistoricalWindow requests row 50 after the host has
// moved on to row 300 and expects the window that was live when row 50
// was on screen.
func TestGetFromLineHistoricalWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 40, Height: 24})
	appendLines(t, store, 0, 301)

	grid, err := store.GetFromLine(50)
	if err != nil {
		t.Fatalf("GetFromLine(50): %v", err)
	}
	if !grid.Contains(50) {
		t.Fatalf("window [%d, %d) does not contain row 50", grid.Top(), grid.Bottom())
	}
	if grid.Bottom() > 50+24 {
		t.Errorf("window [%d, %d) is from after row 50 left the screen", grid.Top(), grid.Bottom())
	}
	for id := grid.Top(); id < grid.Bottom(); id++ {
		row, _ := grid.Row(id)
		if want := lineText(int(id)); row.Text() != want {
			t.Errorf("row %d = %q, want %q", id, row.Text(), want)
		}
	}
}

func TestGetWindowReplaysPastTheAnchor(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 40, Height: 24, SnapshotEvery: 1000})
	appendLines(t, store, 0, 60)

	grid, err := store.GetWindow(5, 10)
	if err != nil {
		t.Fatalf("GetWindow(5, 10): %v", err)
	}
	if !grid.Contains(5) || grid.Bottom() < 15 {
		t.Fatalf("window [%d, %d) does not hold rows [5, 15)", grid.Top(), grid.Bottom())
	}

	// Asking for more rows than fit never scrolls the anchor away.
	grid, err = store.GetWindow(0, 100)
	if err != nil {
		t.Fatalf("GetWindow(0, 100): %v", err)
	}
	if grid.Top() != 0 || grid.Bottom() != 24 {
		t.Errorf("window = [%d, %d), want [0, 24)", grid.Top(), grid.Bottom())
	}
}

func TestGetFromLineErrors(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 5, MaxRows: 12})
	appendLines(t, store, 0, 40)
	bounds := store.Bounds()
	if bounds.Floor == 0 {
		t.Fatal("expected eviction to raise the floor")
	}

	if _, err := store.GetFromLine(bounds.Floor - 1); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("below floor: err = %v, want ErrNotAvailable", err)
	}
	if _, err := store.GetFromLine(bounds.Tail); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("at tail: err = %v, want ErrOutOfRange", err)
	}
	grid, err := store.GetFromLine(bounds.Floor)
	if err != nil {
		t.Fatalf("GetFromLine(floor): %v", err)
	}
	row, _ := grid.Row(bounds.Floor)
	if want := lineText(int(bounds.Floor)); row.Text() != want {
		t.Errorf("floor row = %q, want %q", row.Text(), want)
	}
}

// TestReadRowsMatchesFinalContent checks backfill correctness against a
// model of what each row finally contained, including rows that were
// rewritten while on screen.
func TestReadRowsMatchesFinalContent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 30, Height: 8, SnapshotEvery: 7})
	final := map[int]string{}
	for row := 0; row < 120; row++ {
		draft := fmt.Sprintf("draft %d", row)
		if _, err := store.Append(lineDelta(row, draft)); err != nil {
			t.Fatalf("Append: %v", err)
		}
		final[row] = draft
		if row >= 3 && row%3 == 0 {
			// Rewrite a row that is still on screen.
			edited := fmt.Sprintf("edited %d", row-3)
			if _, err := store.Append(lineDelta(row-3, edited)); err != nil {
				t.Fatalf("Append: %v", err)
			}
			final[row-3] = edited
		}
	}

	bounds := store.Bounds()
	for start := 0; start < int(bounds.Tail); start += 17 {
		rows, err := store.ReadRows(terminal.RowID(start), 17)
		if err != nil {
			t.Fatalf("ReadRows(%d): %v", start, err)
		}
		if rows.Start != terminal.RowID(start) {
			t.Errorf("Start = %d, want %d", rows.Start, start)
		}
		for i, row := range rows.Rows {
			id := start + i
			if row.ID != terminal.RowID(id) {
				t.Errorf("row %d has id %d", id, row.ID)
			}
			if row.Text() != final[id] {
				t.Errorf("row %d = %q, want %q", id, row.Text(), final[id])
			}
		}
	}

	rows, err := store.ReadRows(bounds.Tail-2, 10)
	if err != nil {
		t.Fatalf("ReadRows near tail: %v", err)
	}
	if len(rows.Rows) != 2 {
		t.Errorf("ReadRows clipped at tail returned %d rows, want 2", len(rows.Rows))
	}
	if _, err := store.ReadRows(bounds.Tail, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ReadRows at tail: err = %v, want ErrOutOfRange", err)
	}
}

// Rows that scrolled off the live screen are replayed from the oldest
// snapshot, whose window can extend past the requested range.
func TestReadRowsScrolledOutOfTheLiveWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 10})
	appendLines(t, store, 0, 15)

	for _, count := range []int{5, 10} {
		rows, err := store.ReadRows(0, count)
		if err != nil {
			t.Fatalf("ReadRows(0, %d): %v", count, err)
		}
		if len(rows.Rows) != count {
			t.Fatalf("ReadRows(0, %d) returned %d rows", count, len(rows.Rows))
		}
		for i, row := range rows.Rows {
			if row.ID != terminal.RowID(i) || row.Text() != lineText(i) {
				t.Errorf("row %d = (%d, %q), want %q", i, row.ID, row.Text(), lineText(i))
			}
		}
	}
}

func TestEvictionRaisesFloorAndAnnouncesTrim(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 5, MaxRows: 12})
	appendLines(t, store, 0, 40)

	bounds := store.Bounds()
	snapshots := store.Snapshots()
	if snapshots[0].Top != bounds.Floor {
		t.Errorf("oldest snapshot top %d != floor %d", snapshots[0].Top, bounds.Floor)
	}
	if rows := int(bounds.Tail - bounds.Floor); rows > 12 && len(snapshots) > 1 {
		t.Errorf("retaining %d rows with %d snapshots, limit 12", rows, len(snapshots))
	}

	if _, err := store.ReadRows(bounds.Floor-1, 1); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("ReadRows below floor: err = %v, want ErrNotAvailable", err)
	}
	if _, err := store.DeltasSince(0); !errors.Is(err, ErrCompacted) {
		t.Errorf("DeltasSince(0): err = %v, want ErrCompacted", err)
	}
	if _, err := store.Reconstruct(1); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Reconstruct(1): err = %v, want ErrNotAvailable", err)
	}

	deltas, err := store.DeltasSince(snapshots[0].Seq)
	if err != nil {
		t.Fatalf("DeltasSince(oldest snapshot): %v", err)
	}
	var trimmed terminal.RowID
	for _, d := range deltas {
		if d.Kind == terminal.DeltaTrim {
			trimmed = d.Row
		}
	}
	if trimmed != bounds.Floor {
		t.Errorf("latest retained trim announces floor %d, want %d", trimmed, bounds.Floor)
	}
	if live := store.Live(); live.Floor() != bounds.Floor {
		t.Errorf("live grid floor = %d, want %d", live.Floor(), bounds.Floor)
	}
}

func TestReconstructMatchesReplay(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 20, Height: 6, SnapshotEvery: 5})
	appendLines(t, store, 0, 30)

	deltas, err := store.DeltasSince(0)
	if err != nil {
		t.Fatalf("DeltasSince: %v", err)
	}
	for _, seq := range []terminal.Seq{1, 7, 13, 22, 30} {
		reference := terminal.NewGrid(20, 6)
		for _, d := range deltas {
			if d.Seq > seq {
				break
			}
			reference.Apply(d)
		}
		got, err := store.Reconstruct(seq)
		if err != nil {
			t.Fatalf("Reconstruct(%d): %v", seq, err)
		}
		if got.Top() != reference.Top() || got.Bottom() != reference.Bottom() {
			t.Fatalf("Reconstruct(%d) window [%d, %d), want [%d, %d)", seq, got.Top(), got.Bottom(), reference.Top(), reference.Bottom())
		}
		for id := got.Top(); id < got.Bottom(); id++ {
			want, _ := reference.Row(id)
			have, _ := got.Row(id)
			if !have.Equal(want) {
				t.Errorf("Reconstruct(%d) row %d = %q, want %q", seq, id, have.Text(), want.Text())
			}
		}
	}
	if _, err := store.Reconstruct(31); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Reconstruct past head: err = %v, want ErrOutOfRange", err)
	}
}

func TestChangedClosesOnAppend(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, Config{Cols: 10, Height: 3})
	changed := store.Changed()
	go func() {
		store.Append(lineDelta(0, "wake"))
	}()
	testutil.RequireClosed(t, changed, 5*time.Second, "Changed after Append")
}
