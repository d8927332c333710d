// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
)

var _ Listener = (*TCPListener)(nil)

// TCPListener accepts direct TCP connections from viewers. TCP links
// have no lossy channel.
type TCPListener struct {
	listener net.Listener
	codec    FrameCodec
}

// NewTCPListener listens on address (e.g. ":7891"; ":0" picks a free
// port).
func NewTCPListener(address string, frameCodec FrameCodec) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener, codec: frameCodec}, nil
}

// Accept waits for the next viewer.
func (l *TCPListener) Accept(ctx context.Context) (*Link, error) {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()
	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &Link{
		Reliable: NewStreamChannel(conn, l.codec),
		Remote:   "tcp:" + conn.RemoteAddr().String(),
	}, nil
}

// Address returns the listening address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops accepting connections.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// DialTCP connects to a host's TCP listener.
func DialTCP(ctx context.Context, address string, frameCodec FrameCodec) (*Link, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	return &Link{
		Reliable: NewStreamChannel(conn, frameCodec),
		Remote:   "tcp:" + address,
	}, nil
}
