// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Stream header layout: [1 byte type] [4 bytes block length, big-endian
// uint32] [block].
const (
	streamHeaderLength = 5

	// streamTypeBlock marks a header followed by a frame block. Other
	// type values are reserved and rejected.
	streamTypeBlock byte = 0x01
)

// StreamChannel frames blocks over a byte stream. Receive honors
// context cancellation when the stream supports read deadlines (as
// net.Conn does); otherwise cancellation takes effect once the stream
// is closed.
type StreamChannel struct {
	stream io.ReadWriteCloser
	codec  FrameCodec

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*StreamChannel)(nil)

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(time.Time) error
}

// NewStreamChannel wraps stream. The channel owns the stream and
// closes it on Close.
func NewStreamChannel(stream io.ReadWriteCloser, frameCodec FrameCodec) *StreamChannel {
	return &StreamChannel{stream: stream, codec: frameCodec}
}

// Send writes one frame. Header and block go out in a single Write so
// message-oriented streams see one message per frame.
func (c *StreamChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	block, err := c.codec.Seal(frame)
	if err != nil {
		return err
	}
	if uint64(len(block)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(block))
	}
	message := make([]byte, streamHeaderLength, streamHeaderLength+len(block))
	message[0] = streamTypeBlock
	binary.BigEndian.PutUint32(message[1:5], uint32(len(block)))
	message = append(message, block...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadliner, ok := c.stream.(writeDeadliner); ok {
		if deadline, ok := ctx.Deadline(); ok {
			deadliner.SetWriteDeadline(deadline)
			defer deadliner.SetWriteDeadline(time.Time{})
		}
	}
	if _, err := c.stream.Write(message); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive reads the next frame.
func (c *StreamChannel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadliner, ok := c.stream.(readDeadliner); ok {
		deadliner.SetReadDeadline(time.Time{})
		stop := context.AfterFunc(ctx, func() {
			deadliner.SetReadDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	var header [streamHeaderLength]byte
	if _, err := io.ReadFull(c.stream, header[:]); err != nil {
		return nil, c.readError(ctx, "read frame header", err)
	}
	if header[0] != streamTypeBlock {
		return nil, fmt.Errorf("read frame: unknown stream message type 0x%02x", header[0])
	}
	length := binary.BigEndian.Uint32(header[1:5])
	limit := c.codec.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	// A block is never much larger than the frame it holds.
	if uint64(length) > uint64(limit)+64 {
		return nil, fmt.Errorf("%w: block of %d bytes exceeds %d", ErrFrameTooLarge, length, limit)
	}
	block := make([]byte, length)
	if _, err := io.ReadFull(c.stream, block); err != nil {
		return nil, c.readError(ctx, "read frame block", err)
	}
	return c.codec.Open(block)
}

// readError maps end-of-stream to net.ErrClosed and deadline expiry
// caused by cancellation to the context's error.
func (c *StreamChannel) readError(ctx context.Context, operation string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%s: %w", operation, net.ErrClosed)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// Close closes the underlying stream.
func (c *StreamChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.stream.Close() })
	return c.closeErr
}
