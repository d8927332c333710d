// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
)

// Channel moves whole frames. Send and Receive may be called
// concurrently with each other; each is serialized with itself by the
// implementation. Receive returns net.ErrClosed (possibly wrapped) once
// the channel is closed locally or by the peer.
type Channel interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// ErrFrameTooLarge is returned by Send when a frame exceeds the
// channel's message limit, and by Receive when a peer sends one.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// Link is one connection between a host and a viewer.
type Link struct {
	// Reliable delivers frames in order without loss. Always set.
	Reliable Channel
	// Lossy may drop or reorder frames. Nil when the transport has no
	// lossy path; senders then use Reliable.
	Lossy Channel
	// Generation is the negotiation generation the link was set up
	// under, zero for transports without negotiation.
	Generation uint64
	// Remote describes the peer for logging.
	Remote string

	// release frees what the channels ride on (a PeerConnection).
	release func() error
}

// Close closes both channels and the connection beneath them.
func (l *Link) Close() error {
	err := l.Reliable.Close()
	if l.Lossy != nil {
		err = errors.Join(err, l.Lossy.Close())
	}
	if l.release != nil {
		err = errors.Join(err, l.release())
	}
	return err
}

// Listener accepts inbound links from viewers.
type Listener interface {
	// Accept blocks until a viewer connects, ctx is done or the
	// listener is closed.
	Accept(ctx context.Context) (*Link, error)
	// Address describes where viewers connect.
	Address() string
	Close() error
}

// IsClosed reports whether err means the channel is gone rather than
// a single frame failed.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}
