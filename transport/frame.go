// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/bureau-foundation/termsync/lib/codec"
)

const (
	// DefaultMaxFrameSize bounds an uncompressed frame. A 64-row
	// chunk of 500-column rows encodes well below it.
	DefaultMaxFrameSize = 16 << 20

	// DefaultMaxMessageSize bounds a block sent as a single message
	// on message-oriented channels (data channels, websocket).
	DefaultMaxMessageSize = 48 << 10

	// defaultCompressThreshold is the frame size below which
	// compression is not attempted.
	defaultCompressThreshold = 256
)

// FrameCodec turns encoded frames into compressed blocks and back. The
// zero value stores frames uncompressed and accepts any compression on
// receipt.
type FrameCodec struct {
	Compression codec.CompressionTag
	// Threshold is the smallest frame that is compressed. Zero uses
	// 256 bytes.
	Threshold int
	// MaxFrameSize bounds decoded frames. Zero uses
	// DefaultMaxFrameSize.
	MaxFrameSize int
}

// Seal wraps frame in a block.
func (c FrameCodec) Seal(frame []byte) ([]byte, error) {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = defaultCompressThreshold
	}
	tag := c.Compression
	if len(frame) < threshold {
		tag = codec.CompressionNone
	}
	block, err := codec.Compress(frame, tag)
	if err != nil {
		return nil, fmt.Errorf("seal frame: %w", err)
	}
	return block, nil
}

// Open unwraps a block produced by Seal.
func (c FrameCodec) Open(block []byte) ([]byte, error) {
	limit := c.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	frame, err := codec.Decompress(block, limit)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	return frame, nil
}
