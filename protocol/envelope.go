// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/termsync/lib/codec"
)

// ErrProtocolVersionMismatch is returned by Decode for a frame with an
// unknown kind or a version newer than this package speaks. The frame
// should be dropped and counted.
var ErrProtocolVersionMismatch = errors.New("protocol version mismatch")

// ErrMalformed is returned by Decode when the envelope or body cannot
// be parsed.
var ErrMalformed = errors.New("malformed frame")

// Envelope is the outer wire structure of every frame.
type Envelope struct {
	V    uint16           `cbor:"v"`
	Kind Kind             `cbor:"k"`
	Body codec.RawMessage `cbor:"b"`
}

// Encode serializes a frame inside an envelope stamped with Version.
func Encode(frame Frame) ([]byte, error) {
	body, err := codec.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", frame.Kind(), err)
	}
	data, err := codec.Marshal(Envelope{V: Version, Kind: frame.Kind(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", frame.Kind(), err)
	}
	return data, nil
}

// Decode parses an envelope and its body. The returned Frame is one of
// the value types in this package (Hello, Grid, ...), never a pointer.
func Decode(data []byte) (Frame, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}
	if envelope.V > Version {
		return nil, fmt.Errorf("%w: frame version %d, speaking %d", ErrProtocolVersionMismatch, envelope.V, Version)
	}
	switch envelope.Kind {
	case KindHello:
		return decodeBody[Hello](envelope)
	case KindGrid:
		return decodeBody[Grid](envelope)
	case KindSnapshot:
		return decodeBody[Snapshot](envelope)
	case KindSnapshotComplete:
		return decodeBody[SnapshotComplete](envelope)
	case KindDelta:
		return decodeBody[DeltaBatch](envelope)
	case KindRequestBackfill:
		return decodeBody[RequestBackfill](envelope)
	case KindHistoryBackfill:
		return decodeBody[HistoryBackfill](envelope)
	case KindResyncRequest:
		return decodeBody[ResyncRequest](envelope)
	case KindState:
		return decodeBody[State](envelope)
	case KindHeartbeat:
		return decodeBody[Heartbeat](envelope)
	case KindAck:
		return decodeBody[Ack](envelope)
	case KindInput:
		return decodeBody[Input](envelope)
	case KindShutdown:
		return decodeBody[Shutdown](envelope)
	default:
		return nil, fmt.Errorf("%w: unknown frame kind %d", ErrProtocolVersionMismatch, uint8(envelope.Kind))
	}
}

func decodeBody[F Frame](envelope Envelope) (Frame, error) {
	var frame F
	if err := codec.Unmarshal(envelope.Body, &frame); err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrMalformed, envelope.Kind, err)
	}
	return frame, nil
}

// DropReason classifies a decode error for the dropped-frame metric.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrProtocolVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
