// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/termsync/lib/codec"
	"github.com/bureau-foundation/termsync/lib/testutil"
)

func TestStreamChannelRoundTrip(t *testing.T) {
	t.Parallel()
	for _, compression := range []codec.CompressionTag{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()
			left, right := net.Pipe()
			sender := NewStreamChannel(left, FrameCodec{Compression: compression})
			// The receiver's own setting does not matter: blocks are
			// self-describing.
			receiver := NewStreamChannel(right, FrameCodec{})
			defer sender.Close()
			defer receiver.Close()

			frames := [][]byte{[]byte("x"), textFrame(100 << 10), {}}
			go func() {
				for _, frame := range frames {
					if err := sender.Send(context.Background(), frame); err != nil {
						t.Errorf("Send: %v", err)
						return
					}
				}
			}()
			for i, want := range frames {
				got, err := receiver.Receive(context.Background())
				if err != nil {
					t.Fatalf("Receive %d: %v", i, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("frame %d: got %d bytes, want %d", i, len(got), len(want))
				}
			}
		})
	}
}

func TestStreamChannelReceiveCancel(t *testing.T) {
	t.Parallel()
	left, right := net.Pipe()
	defer left.Close()
	receiver := NewStreamChannel(right, FrameCodec{})
	defer receiver.Close()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := receiver.Receive(ctx)
		result <- err
	}()
	cancel()
	err := testutil.RequireReceive(t, result, 5*time.Second, "Receive after cancel")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Receive: err = %v, want context.Canceled", err)
	}
}

func TestStreamChannelPeerClose(t *testing.T) {
	t.Parallel()
	left, right := net.Pipe()
	receiver := NewStreamChannel(right, FrameCodec{})
	left.Close()
	_, err := receiver.Receive(context.Background())
	if !errors.Is(err, net.ErrClosed) {
		t.Errorf("Receive: err = %v, want net.ErrClosed", err)
	}
	if !IsClosed(err) {
		t.Error("IsClosed = false for a closed stream")
	}
}

func TestStreamChannelRejectsUnknownHeader(t *testing.T) {
	t.Parallel()
	left, right := net.Pipe()
	receiver := NewStreamChannel(right, FrameCodec{})
	go func() {
		left.Write([]byte{0x7f, 0, 0, 0, 1, 0})
	}()
	if _, err := receiver.Receive(context.Background()); err == nil {
		t.Error("Receive accepted an unknown stream message type")
	}
	left.Close()
}

func TestStreamChannelOverDataChannelConn(t *testing.T) {
	t.Parallel()
	left, right := newMessagePipe()
	sender := NewStreamChannel(NewDataChannelConn(left, "a", "b"), FrameCodec{})
	receiver := NewStreamChannel(NewDataChannelConn(right, "b", "a"), FrameCodec{})

	// Larger than one data channel message, uncompressible enough
	// to stay large.
	frame := make([]byte, 50<<10)
	for i := range frame {
		frame[i] = byte(i * 7919 >> 3)
	}
	if err := sender.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := receiver.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("frame differs after crossing the data channel")
	}
}
