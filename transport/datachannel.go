// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// DataChannel sends one frame block per data channel message. It is
// used for the unordered, no-retransmit channel, where a frame must be
// a single message so that losing it loses nothing else.
type DataChannel struct {
	rwc            io.ReadWriteCloser
	codec          FrameCodec
	maxMessageSize int

	writeMu sync.Mutex
	readMu  sync.Mutex
	buffer  []byte

	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*DataChannel)(nil)

// NewDataChannel wraps a detached data channel. maxMessageSize bounds
// one block; zero uses DefaultMaxMessageSize.
func NewDataChannel(rwc io.ReadWriteCloser, frameCodec FrameCodec, maxMessageSize int) *DataChannel {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &DataChannel{rwc: rwc, codec: frameCodec, maxMessageSize: maxMessageSize}
}

// Send writes frame as one message. A frame whose block exceeds the
// message size fails with ErrFrameTooLarge; the caller should send it
// on the reliable channel instead.
func (c *DataChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	block, err := c.codec.Seal(frame)
	if err != nil {
		return err
	}
	if len(block) > c.maxMessageSize {
		return fmt.Errorf("%w: %d byte block, message limit %d", ErrFrameTooLarge, len(block), c.maxMessageSize)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.rwc.Write(block); err != nil {
		return c.mapError("data channel write", err)
	}
	return nil
}

// Receive reads the next message. Cancellation closes the channel.
func (c *DataChannel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if c.buffer == nil {
		c.buffer = make([]byte, c.maxMessageSize+64)
	}
	n, err := c.rwc.Read(c.buffer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, io.ErrShortBuffer) {
			return nil, fmt.Errorf("data channel read: %w", ErrFrameTooLarge)
		}
		return nil, c.mapError("data channel read", err)
	}
	// Open may return a slice of its input; the buffer is reused.
	return c.codec.Open(append([]byte(nil), c.buffer[:n]...))
}

func (c *DataChannel) mapError(operation string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%s: %w", operation, net.ErrClosed)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// Close closes the data channel.
func (c *DataChannel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}
