// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"net"
	"sync"
	"time"
)

const (
	// dataChannelChunk is the largest message DataChannelConn writes.
	// It stays well under SCTP's 64 KiB default message limit.
	dataChannelChunk = 16 << 10

	// dataChannelReadBuffer must hold the largest message a peer may
	// send on the channel.
	dataChannelReadBuffer = 64 << 10
)

// DataChannelConn turns a detached, message-oriented pion data channel
// into a byte stream implementing net.Conn. Writes are split into
// messages of at most 16 KiB; reads drain one message at a time
// through an internal buffer, so callers may read any number of bytes.
// Only meaningful on ordered, reliable channels.
//
// Deadlines are timer based: when one fires the underlying channel is
// closed, unblocking pending I/O, and the conn is permanently broken.
type DataChannelConn struct {
	rwc        io.ReadWriteCloser
	localLabel string
	peerLabel  string

	readMu  sync.Mutex
	buffer  []byte
	pending []byte

	writeMu sync.Mutex

	mu             sync.Mutex
	readTimer      *time.Timer
	writeTimer     *time.Timer
	deadlineClosed bool
}

var _ net.Conn = (*DataChannelConn)(nil)

// NewDataChannelConn wraps a detached data channel. The labels name the
// two endpoints in LocalAddr and RemoteAddr.
func NewDataChannelConn(rwc io.ReadWriteCloser, localLabel, peerLabel string) *DataChannelConn {
	return &DataChannelConn{
		rwc:        rwc,
		localLabel: localLabel,
		peerLabel:  peerLabel,
	}
}

func (c *DataChannelConn) Read(buffer []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if len(c.pending) == 0 {
		if c.buffer == nil {
			c.buffer = make([]byte, dataChannelReadBuffer)
		}
		n, err := c.rwc.Read(c.buffer)
		if err != nil {
			return 0, c.mapError(err)
		}
		c.pending = c.buffer[:n]
	}
	n := copy(buffer, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *DataChannelConn) Write(buffer []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	written := 0
	for written < len(buffer) {
		end := min(written+dataChannelChunk, len(buffer))
		n, err := c.rwc.Write(buffer[written:end])
		written += n
		if err != nil {
			return written, c.mapError(err)
		}
	}
	return written, nil
}

// mapError reports a deadline-triggered close as a timeout.
func (c *DataChannelConn) mapError(err error) error {
	c.mu.Lock()
	closedByDeadline := c.deadlineClosed
	c.mu.Unlock()
	if closedByDeadline {
		return errDeadlineExceeded
	}
	return err
}

func (c *DataChannelConn) Close() error {
	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()
	return c.rwc.Close()
}

// LocalAddr returns a synthetic address naming the local endpoint.
func (c *DataChannelConn) LocalAddr() net.Addr {
	return dataChannelAddr(c.localLabel)
}

// RemoteAddr returns a synthetic address naming the remote endpoint.
func (c *DataChannelConn) RemoteAddr() net.Addr {
	return dataChannelAddr(c.peerLabel)
}

// SetDeadline sets both deadlines. A zero value clears them.
func (c *DataChannelConn) SetDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimer = c.armLocked(c.readTimer, deadline)
	c.writeTimer = c.armLocked(c.writeTimer, deadline)
	return nil
}

// SetReadDeadline sets the read deadline. A zero value clears it.
func (c *DataChannelConn) SetReadDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimer = c.armLocked(c.readTimer, deadline)
	return nil
}

// SetWriteDeadline sets the write deadline. A zero value clears it.
func (c *DataChannelConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeTimer = c.armLocked(c.writeTimer, deadline)
	return nil
}

// armLocked replaces timer with one that breaks the conn at deadline.
func (c *DataChannelConn) armLocked(timer *time.Timer, deadline time.Time) *time.Timer {
	if timer != nil {
		timer.Stop()
	}
	if deadline.IsZero() || c.deadlineClosed {
		return nil
	}
	duration := time.Until(deadline)
	if duration <= 0 {
		c.closeFromDeadlineLocked()
		return nil
	}
	return time.AfterFunc(duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closeFromDeadlineLocked()
	})
}

func (c *DataChannelConn) closeFromDeadlineLocked() {
	if c.deadlineClosed {
		return
	}
	c.deadlineClosed = true
	c.rwc.Close()
}

func (c *DataChannelConn) stopTimersLocked() {
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	if c.writeTimer != nil {
		c.writeTimer.Stop()
		c.writeTimer = nil
	}
}

// errDeadlineExceeded satisfies net.Error with Timeout() true.
var errDeadlineExceeded error = deadlineError{}

type deadlineError struct{}

func (deadlineError) Error() string   { return "data channel deadline exceeded" }
func (deadlineError) Timeout() bool   { return true }
func (deadlineError) Temporary() bool { return true }

type dataChannelAddr string

func (a dataChannelAddr) Network() string { return "webrtc" }
func (a dataChannelAddr) String() string  { return string(a) }
