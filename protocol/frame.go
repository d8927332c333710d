// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"

	"github.com/bureau-foundation/termsync/terminal"
)

// Version is the protocol version this package speaks. A peer
// receiving an envelope with a higher version drops the frame.
const Version uint16 = 1

// Kind identifies a frame type on the wire. The values are wire
// constants; never renumber them.
type Kind uint8

const (
	KindHello            Kind = 1
	KindGrid             Kind = 2
	KindSnapshot         Kind = 3
	KindSnapshotComplete Kind = 4
	KindDelta            Kind = 5
	KindRequestBackfill  Kind = 6
	KindHistoryBackfill  Kind = 7
	KindResyncRequest    Kind = 8
	KindState            Kind = 9
	KindHeartbeat        Kind = 10
	KindAck              Kind = 11
	KindInput            Kind = 12
	KindShutdown         Kind = 13
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindGrid:
		return "grid"
	case KindSnapshot:
		return "snapshot"
	case KindSnapshotComplete:
		return "snapshot_complete"
	case KindDelta:
		return "delta"
	case KindRequestBackfill:
		return "request_backfill"
	case KindHistoryBackfill:
		return "history_backfill"
	case KindResyncRequest:
		return "resync_request"
	case KindState:
		return "state"
	case KindHeartbeat:
		return "heartbeat"
	case KindAck:
		return "ack"
	case KindInput:
		return "input"
	case KindShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Frame is implemented by every frame struct in this package.
type Frame interface {
	Kind() Kind
}

// Lossy reports whether frames of this kind may travel on the
// unordered, unreliable channel. Only versioned state and heartbeats
// tolerate loss: the resync protocol detects and repairs gaps in them.
func (k Kind) Lossy() bool {
	return k == KindState || k == KindHeartbeat
}

// Hello opens a session in either direction. The host's Hello
// describes the session and where its history starts; the viewer's
// Hello states how much initial content it wants.
type Hello struct {
	Version uint16 `cbor:"v"`
	// Session identifies the host session (a UUID).
	Session string `cbor:"s"`
	// Generation is the transport negotiation generation this
	// connection belongs to.
	Generation uint64 `cbor:"g,omitempty"`

	// Host fields.
	Floor terminal.RowID `cbor:"f,omitempty"`
	Tail  terminal.RowID `cbor:"t,omitempty"`
	Head  terminal.Seq   `cbor:"h,omitempty"`

	// Viewer fields. Zero InitialRows takes the host default.
	InitialRows int  `cbor:"ir,omitempty"`
	Lossy       bool `cbor:"l,omitempty"`
}

// Grid reports the live window dimensions. VisibleRows is the live
// viewport height, never the retained history length: the viewer
// computes its tail offset from it.
type Grid struct {
	VisibleRows int            `cbor:"r"`
	Cols        int            `cbor:"c"`
	Floor       terminal.RowID `cbor:"f"`
	Tail        terminal.RowID `cbor:"t"`
}

// Snapshot carries one chunk of the initial rows. Chunks are sent
// newest first so the viewer can draw the tail before history arrives.
type Snapshot struct {
	// AsOf is the head sequence the rows were read at.
	AsOf terminal.Seq   `cbor:"q"`
	Rows []terminal.Row `cbor:"r"`
	// Cursor and Styles are set on the first chunk only.
	Cursor    *terminal.Cursor `cbor:"u,omitempty"`
	CursorSeq terminal.Seq     `cbor:"us,omitempty"`
	Styles    []terminal.Style `cbor:"s,omitempty"`
}

// SnapshotComplete ends a snapshot sequence. Deltas after AsOf follow
// on the delta lane.
type SnapshotComplete struct {
	AsOf terminal.Seq `cbor:"q"`
	// Top and Bottom bound the rows the snapshot delivered.
	Top    terminal.RowID `cbor:"t"`
	Bottom terminal.RowID `cbor:"b"`
	Floor  terminal.RowID `cbor:"f"`
}

// DeltaBatch carries consecutive live mutations in sequence order.
type DeltaBatch struct {
	Deltas []terminal.Delta `cbor:"d"`
}

// RequestBackfill asks for up to MaxRows rows starting at StartRow.
// RequestID is chosen by the viewer and echoed in every reply chunk.
type RequestBackfill struct {
	RequestID uint64         `cbor:"i"`
	StartRow  terminal.RowID `cbor:"s"`
	MaxRows   int            `cbor:"n"`
}

// Availability classifies a backfill reply.
type Availability uint8

const (
	// Delivered means Rows holds the final content of Count rows.
	Delivered Availability = 1
	// TransientEmpty means nothing could be sent now; the range may
	// still be filled by a retry.
	TransientEmpty Availability = 2
	// PermanentlyUnavailable means the range has been evicted and
	// will never be available again.
	PermanentlyUnavailable Availability = 3
)

func (a Availability) String() string {
	switch a {
	case Delivered:
		return "delivered"
	case TransientEmpty:
		return "transient_empty"
	case PermanentlyUnavailable:
		return "permanently_unavailable"
	default:
		return fmt.Sprintf("availability(%d)", uint8(a))
	}
}

// HistoryBackfill is one chunk of a backfill reply. Count is the number
// of rows the chunk accounts for starting at StartRow; for Delivered
// chunks it equals len(Rows). More is false on the final chunk of the
// request.
type HistoryBackfill struct {
	RequestID    uint64         `cbor:"i"`
	StartRow     terminal.RowID `cbor:"s"`
	Count        int            `cbor:"n"`
	Rows         []terminal.Row `cbor:"r,omitempty"`
	More         bool           `cbor:"m,omitempty"`
	Availability Availability   `cbor:"a"`
	AsOf         terminal.Seq   `cbor:"q,omitempty"`
}

// End returns one past the last row the chunk accounts for.
func (b HistoryBackfill) End() terminal.RowID {
	return b.StartRow + terminal.RowID(max(b.Count, 0))
}

// ResyncRequest asks the host to bridge from LastVersion to its current
// version.
type ResyncRequest struct {
	LastVersion uint64 `cbor:"v"`
}

// State is a versioned update for the resync lane. A snapshot state
// carries Grid and ignores BaseVersion; any other state carries the
// deltas that take BaseVersion to Version.
type State struct {
	Version     uint64           `cbor:"v"`
	BaseVersion uint64           `cbor:"b,omitempty"`
	IsSnapshot  bool             `cbor:"s,omitempty"`
	Updates     []terminal.Delta `cbor:"u,omitempty"`
	Grid        *terminal.State  `cbor:"g,omitempty"`
}

// Heartbeat announces the host's head so an idle viewer can detect a
// lost final update.
type Heartbeat struct {
	Seq     terminal.Seq `cbor:"q"`
	Version uint64       `cbor:"v"`
}

// Ack reports the highest sequence the viewer has applied.
type Ack struct {
	Seq terminal.Seq `cbor:"q"`
}

// Input carries viewer keystrokes to the host.
type Input struct {
	Data []byte `cbor:"d"`
}

// ShutdownReason is the close reason code.
type ShutdownReason uint8

const (
	ShutdownNormal ShutdownReason = iota
	ShutdownHostExiting
	ShutdownProtocolError
	ShutdownSlowConsumer
)

func (r ShutdownReason) String() string {
	switch r {
	case ShutdownNormal:
		return "normal"
	case ShutdownHostExiting:
		return "host_exiting"
	case ShutdownProtocolError:
		return "protocol_error"
	case ShutdownSlowConsumer:
		return "slow_consumer"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Shutdown precedes a deliberate close.
type Shutdown struct {
	Reason  ShutdownReason `cbor:"r"`
	Message string         `cbor:"m,omitempty"`
}

func (Hello) Kind() Kind            { return KindHello }
func (Grid) Kind() Kind             { return KindGrid }
func (Snapshot) Kind() Kind         { return KindSnapshot }
func (SnapshotComplete) Kind() Kind { return KindSnapshotComplete }
func (DeltaBatch) Kind() Kind       { return KindDelta }
func (RequestBackfill) Kind() Kind  { return KindRequestBackfill }
func (HistoryBackfill) Kind() Kind  { return KindHistoryBackfill }
func (ResyncRequest) Kind() Kind    { return KindResyncRequest }
func (State) Kind() Kind            { return KindState }
func (Heartbeat) Kind() Kind        { return KindHeartbeat }
func (Ack) Kind() Kind              { return KindAck }
func (Input) Kind() Kind            { return KindInput }
func (Shutdown) Kind() Kind         { return KindShutdown }
