// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"io"
	"sync"
)

// messagePipe is an in-memory stand-in for a detached data channel:
// every Write is one message and every Read returns exactly one
// message, failing with io.ErrShortBuffer when the buffer is too small.
type messagePipe struct {
	in     <-chan []byte
	out    chan<- []byte
	closed chan struct{}
	once   *sync.Once

	mu     sync.Mutex
	writes []int
}

func newMessagePipe() (*messagePipe, *messagePipe) {
	aToB := make(chan []byte, 256)
	bToA := make(chan []byte, 256)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &messagePipe{in: bToA, out: aToB, closed: closed, once: once},
		&messagePipe{in: aToB, out: bToA, closed: closed, once: once}
}

func (p *messagePipe) Read(buffer []byte) (int, error) {
	select {
	case message := <-p.in:
		if len(message) > len(buffer) {
			return 0, io.ErrShortBuffer
		}
		return copy(buffer, message), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *messagePipe) Write(buffer []byte) (int, error) {
	message := append([]byte(nil), buffer...)
	p.mu.Lock()
	p.writes = append(p.writes, len(message))
	p.mu.Unlock()
	select {
	case p.out <- message:
		return len(buffer), nil
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *messagePipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *messagePipe) messageSizes() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.writes...)
}

// textFrame returns a compressible frame of n bytes.
func textFrame(n int) []byte {
	frame := make([]byte, n)
	for i := range frame {
		frame[i] = "termsync "[i%9]
	}
	return frame
}
