// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/terminal"
)

// Snapshot describes one retained copy of the live window. The payload
// itself stays inside the store.
type Snapshot struct {
	// Seq is the last sequence the snapshot includes.
	Seq terminal.Seq

	// Top and Bottom bound the rows the snapshot holds, [Top, Bottom).
	Top    terminal.RowID
	Bottom terminal.RowID

	// Taken is when the snapshot was captured.
	Taken time.Time

	// Digest is the BLAKE3 hash of the uncompressed payload.
	Digest [32]byte

	// Size is the compressed payload size in bytes.
	Size int
}

// Covers reports whether row lies inside the snapshot.
func (s Snapshot) Covers(row terminal.RowID) bool {
	return row >= s.Top && row < s.Bottom
}

// entry is a retained snapshot with its payload.
type entry struct {
	Snapshot
	payload []byte
}

// EncodeState serializes a grid state into a compressed, digested
// payload.
func EncodeState(state terminal.State, compression codec.CompressionTag) (payload []byte, digest [32]byte, err error) {
	raw, err := codec.Marshal(state)
	if err != nil {
		return nil, digest, fmt.Errorf("encoding snapshot: %w", err)
	}
	digest = blake3.Sum256(raw)
	payload, err = codec.Compress(raw, compression)
	if err != nil {
		return nil, digest, fmt.Errorf("compressing snapshot: %w", err)
	}
	return payload, digest, nil
}

// DecodeState reverses EncodeState, verifying the digest.
func DecodeState(payload []byte, digest [32]byte) (terminal.State, error) {
	raw, err := codec.Decompress(payload, maxSnapshotPayload)
	if err != nil {
		return terminal.State{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	sum := blake3.Sum256(raw)
	if !bytes.Equal(sum[:], digest[:]) {
		return terminal.State{}, fmt.Errorf("%w: digest mismatch", ErrCorruptSnapshot)
	}
	var state terminal.State
	if err := codec.Unmarshal(raw, &state); err != nil {
		return terminal.State{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return state, nil
}

func (e *entry) grid() (*terminal.Grid, error) {
	state, err := DecodeState(e.payload, e.Digest)
	if err != nil {
		return nil, fmt.Errorf("snapshot at seq %d: %w", e.Seq, err)
	}
	return terminal.GridFromState(state), nil
}
