// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// PipeOptions configures one direction of a Pipe.
type PipeOptions struct {
	// Buffer is the number of frames that can be in flight before
	// Send blocks. Zero uses 64.
	Buffer int
	// Drop, when set, is called for every frame sent; returning true
	// discards the frame silently, as a lossy channel would.
	Drop func(frame []byte) bool
}

// Pipe returns two connected in-process channels. Frames sent on one
// are received on the other, in order, minus whatever the sender's
// Drop discards. Frames are copied on send.
func Pipe(a, b PipeOptions) (Channel, Channel) {
	aToB := make(chan []byte, bufferSize(a.Buffer))
	bToA := make(chan []byte, bufferSize(b.Buffer))
	closed := make(chan struct{})
	once := &sync.Once{}
	left := &pipeChannel{send: aToB, receive: bToA, drop: a.Drop, closed: closed, once: once}
	right := &pipeChannel{send: bToA, receive: aToB, drop: b.Drop, closed: closed, once: once}
	return left, right
}

// PipeLink returns two connected links, each with a lossless reliable
// channel and a lossy channel whose drops are decided by dropAToB and
// dropBToA (either may be nil).
func PipeLink(dropAToB, dropBToA func(frame []byte) bool) (*Link, *Link) {
	reliableA, reliableB := Pipe(PipeOptions{}, PipeOptions{})
	lossyA, lossyB := Pipe(PipeOptions{Drop: dropAToB}, PipeOptions{Drop: dropBToA})
	return &Link{Reliable: reliableA, Lossy: lossyA, Remote: "pipe:b"},
		&Link{Reliable: reliableB, Lossy: lossyB, Remote: "pipe:a"}
}

func bufferSize(n int) int {
	if n <= 0 {
		return 64
	}
	return n
}

type pipeChannel struct {
	send    chan<- []byte
	receive <-chan []byte
	drop    func([]byte) bool
	closed  chan struct{}
	once    *sync.Once
}

func (p *pipeChannel) Send(ctx context.Context, frame []byte) error {
	select {
	case <-p.closed:
		return fmt.Errorf("pipe send: %w", net.ErrClosed)
	default:
	}
	if p.drop != nil && p.drop(frame) {
		return nil
	}
	frame = append([]byte(nil), frame...)
	select {
	case p.send <- frame:
		return nil
	case <-p.closed:
		return fmt.Errorf("pipe send: %w", net.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns frames queued before a close ahead of the close
// itself, as a stream socket would.
func (p *pipeChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-p.receive:
		return frame, nil
	case <-p.closed:
		select {
		case frame := <-p.receive:
			return frame, nil
		default:
		}
		return nil, fmt.Errorf("pipe receive: %w", net.ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends.
func (p *pipeChannel) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}
