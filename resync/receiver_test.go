// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resync

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/terminal"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// gridTarget applies resync output to a plain grid.
type gridTarget struct {
	grid    *terminal.Grid
	applied []terminal.Seq
}

func (g *gridTarget) Apply(d terminal.Delta) {
	g.grid.Apply(d)
	g.applied = append(g.applied, d.Seq)
}

func (g *gridTarget) ApplyState(state terminal.State) {
	g.grid = terminal.GridFromState(state)
}

func newGridTarget() *gridTarget {
	return &gridTarget{grid: terminal.NewGrid(20, 5)}
}

// chained returns the state taking base to base+1 with one row write.
func chained(base uint64) protocol.State {
	seq := terminal.Seq(base + 1)
	return protocol.State{
		Version:     base + 1,
		BaseVersion: base,
		Updates: []terminal.Delta{{
			Seq: seq, Kind: terminal.DeltaRow, Row: terminal.RowID(base),
			Cells: terminal.TextCells("x", 0),
		}},
	}
}

func TestReceiverBuffersGapAndDrains(t *testing.T) {
	t.Parallel()
	target := newGridTarget()
	receiver := NewReceiver(target, 0, ReceiverConfig{Clock: clock.Fake(epoch)})

	if _, err := receiver.Receive(chained(0)); err != nil {
		t.Fatalf("in-order state: %v", err)
	}
	request, err := receiver.Receive(chained(2))
	if !errors.Is(err, ErrDesyncDetected) {
		t.Fatalf("gap error = %v, want ErrDesyncDetected", err)
	}
	if request.LastVersion != 1 {
		t.Errorf("request LastVersion = %d, want 1", request.LastVersion)
	}
	if _, err := receiver.Receive(chained(3)); err != nil {
		t.Errorf("second state in the same gap asked again: %v", err)
	}
	if receiver.Buffered() != 2 || receiver.LastApplied() != 1 {
		t.Fatalf("buffered %d, last %d; want 2 buffered at version 1", receiver.Buffered(), receiver.LastApplied())
	}

	if _, err := receiver.Receive(chained(1)); err != nil {
		t.Fatalf("gap-closing state: %v", err)
	}
	if receiver.LastApplied() != 4 || receiver.Buffered() != 0 {
		t.Errorf("after closing the gap: last %d, buffered %d; want 4 and 0", receiver.LastApplied(), receiver.Buffered())
	}
	want := []terminal.Seq{1, 2, 3, 4}
	if len(target.applied) != len(want) {
		t.Fatalf("applied %v, want %v", target.applied, want)
	}
	for i := range want {
		if target.applied[i] != want[i] {
			t.Fatalf("applied %v, want %v", target.applied, want)
		}
	}
}

func TestReceiverIgnoresStaleStates(t *testing.T) {
	t.Parallel()
	target := newGridTarget()
	receiver := NewReceiver(target, 5, ReceiverConfig{Clock: clock.Fake(epoch)})
	if _, err := receiver.Receive(chained(3)); err != nil {
		t.Fatalf("stale state: %v", err)
	}
	if len(target.applied) != 0 || receiver.LastApplied() != 5 {
		t.Errorf("stale state applied: %v, last %d", target.applied, receiver.LastApplied())
	}

	// A state whose base is behind but whose version is ahead still
	// moves the receiver forward.
	overlapping := protocol.State{Version: 8, BaseVersion: 4}
	if _, err := receiver.Receive(overlapping); err != nil {
		t.Fatalf("overlapping state: %v", err)
	}
	if receiver.LastApplied() != 8 {
		t.Errorf("last = %d, want 8", receiver.LastApplied())
	}
}

func TestSnapshotStateClearsBuffer(t *testing.T) {
	t.Parallel()
	target := newGridTarget()
	receiver := NewReceiver(target, 0, ReceiverConfig{Clock: clock.Fake(epoch)})
	receiver.Receive(chained(4))
	receiver.Receive(chained(9))

	source := terminal.NewGrid(20, 5)
	source.Apply(terminal.Delta{Seq: 12, Kind: terminal.DeltaRow, Row: 2, Cells: terminal.TextCells("fresh", 0)})
	state := source.State()
	if _, err := receiver.Receive(protocol.State{Version: 12, IsSnapshot: true, Grid: &state}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if receiver.Buffered() != 0 || receiver.LastApplied() != 12 {
		t.Errorf("after snapshot: buffered %d, last %d", receiver.Buffered(), receiver.LastApplied())
	}
	if row, _ := target.grid.Row(2); row.Text() != "fresh" {
		t.Errorf("row 2 = %q after snapshot", row.Text())
	}
}

func TestHeartbeatDetectsLostTail(t *testing.T) {
	t.Parallel()
	fake := clock.Fake(epoch)
	receiver := NewReceiver(newGridTarget(), 5, ReceiverConfig{Clock: fake, RetryInterval: 2 * time.Second})

	if _, err := receiver.Heartbeat(protocol.Heartbeat{Seq: 5, Version: 5}); err != nil {
		t.Errorf("heartbeat at the applied version: %v", err)
	}
	request, err := receiver.Heartbeat(protocol.Heartbeat{Seq: 7, Version: 7})
	if !errors.Is(err, ErrDesyncDetected) || request.LastVersion != 5 {
		t.Fatalf("heartbeat ahead = %+v, %v; want a request from 5", request, err)
	}
	if _, err := receiver.Heartbeat(protocol.Heartbeat{Seq: 7, Version: 7}); err != nil {
		t.Errorf("repeated heartbeat within the retry interval asked again: %v", err)
	}
	fake.Advance(2 * time.Second)
	if _, err := receiver.Heartbeat(protocol.Heartbeat{Seq: 7, Version: 7}); !errors.Is(err, ErrDesyncDetected) {
		t.Errorf("heartbeat after the retry interval = %v, want another request", err)
	}
}
