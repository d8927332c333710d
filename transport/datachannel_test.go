// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bureau-foundation/termsync/lib/codec"
)

func TestDataChannelConnSplitsAndReassembles(t *testing.T) {
	t.Parallel()
	left, right := newMessagePipe()
	writer := NewDataChannelConn(left, "viewer/reliable", "host/reliable")
	reader := NewDataChannelConn(right, "host/reliable", "viewer/reliable")
	defer writer.Close()

	payload := textFrame(40 << 10)
	if _, err := writer.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, size := range left.messageSizes() {
		if size > dataChannelChunk {
			t.Errorf("wrote a %d byte message, limit %d", size, dataChannelChunk)
		}
	}

	// Read in small pieces that straddle message boundaries.
	received := make([]byte, len(payload))
	if _, err := io.ReadFull(reader, received); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if !bytes.Equal(received, payload) {
		t.Error("reassembled stream differs from what was written")
	}
}

func TestDataChannelConnAddresses(t *testing.T) {
	t.Parallel()
	left, _ := newMessagePipe()
	conn := NewDataChannelConn(left, "local/dc", "remote/dc")
	if conn.LocalAddr().Network() != "webrtc" || conn.LocalAddr().String() != "local/dc" {
		t.Errorf("LocalAddr = %s %s", conn.LocalAddr().Network(), conn.LocalAddr())
	}
	if conn.RemoteAddr().String() != "remote/dc" {
		t.Errorf("RemoteAddr = %s", conn.RemoteAddr())
	}
}

func TestDataChannelConnDeadlineBreaksRead(t *testing.T) {
	t.Parallel()
	left, _ := newMessagePipe()
	conn := NewDataChannelConn(left, "local", "remote")
	conn.SetReadDeadline(time.Now().Add(-time.Second))

	_, err := conn.Read(make([]byte, 8))
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Read after expired deadline: err = %v, want a timeout", err)
	}
}

func TestDataChannelOneFramePerMessage(t *testing.T) {
	t.Parallel()
	left, right := newMessagePipe()
	frameCodec := FrameCodec{Compression: codec.CompressionLZ4}
	sender := NewDataChannel(left, frameCodec, 0)
	receiver := NewDataChannel(right, frameCodec, 0)
	ctx := context.Background()

	frames := [][]byte{[]byte("small"), textFrame(20 << 10)}
	for _, frame := range frames {
		if err := sender.Send(ctx, frame); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if sizes := left.messageSizes(); len(sizes) != len(frames) {
		t.Fatalf("sent %d messages for %d frames", len(sizes), len(frames))
	}
	for i, want := range frames {
		got, err := receiver.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d differs", i)
		}
	}
}

func TestDataChannelRejectsOversizedFrame(t *testing.T) {
	t.Parallel()
	left, _ := newMessagePipe()
	sender := NewDataChannel(left, FrameCodec{}, 1024)
	err := sender.Send(context.Background(), make([]byte, 4096))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Send: err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDataChannelReceiveAfterPeerClose(t *testing.T) {
	t.Parallel()
	left, right := newMessagePipe()
	receiver := NewDataChannel(right, FrameCodec{}, 0)
	left.Close()
	_, err := receiver.Receive(context.Background())
	if !errors.Is(err, net.ErrClosed) {
		t.Errorf("Receive: err = %v, want net.ErrClosed", err)
	}
}
