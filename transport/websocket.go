// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// webSocketWriteTimeout bounds one message write when the caller's
// context has no deadline.
const webSocketWriteTimeout = 10 * time.Second

// WebSocketChannel sends one frame block per binary websocket message.
type WebSocketChannel struct {
	conn  *websocket.Conn
	codec FrameCodec

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*WebSocketChannel)(nil)

// NewWebSocketChannel wraps an established websocket connection.
func NewWebSocketChannel(conn *websocket.Conn, frameCodec FrameCodec) *WebSocketChannel {
	limit := frameCodec.MaxFrameSize
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	conn.SetReadLimit(int64(limit) + 64)
	return &WebSocketChannel{conn: conn, codec: frameCodec}
}

// Send writes one frame as a binary message.
func (c *WebSocketChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	block, err := c.codec.Seal(frame)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(webSocketWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, block); err != nil {
		return c.mapError("websocket write", err)
	}
	return nil
}

// Receive reads the next binary message. Text messages are rejected.
func (c *WebSocketChannel) Receive(ctx context.Context) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	for {
		messageType, block, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, c.mapError("websocket read", err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return c.codec.Open(block)
	}
}

func (c *WebSocketChannel) mapError(operation string, err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%s: %v: %w", operation, err, net.ErrClosed)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// Close sends a normal closure message and closes the connection.
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// WebSocketListener is an http.Handler that upgrades requests into
// links and hands them to Accept. Mount it on the relay HTTP server.
type WebSocketListener struct {
	upgrader websocket.Upgrader
	codec    FrameCodec
	logger   *slog.Logger
	address  string

	links     chan *Link
	closed    chan struct{}
	closeOnce sync.Once
}

var (
	_ Listener     = (*WebSocketListener)(nil)
	_ http.Handler = (*WebSocketListener)(nil)
)

// NewWebSocketListener creates a listener. address is reported by
// Address for logging. checkOrigin may be nil to accept any origin.
func NewWebSocketListener(address string, frameCodec FrameCodec, checkOrigin func(*http.Request) bool, logger *slog.Logger) *WebSocketListener {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketListener{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     checkOrigin,
		},
		codec:   frameCodec,
		logger:  logger,
		address: address,
		links:   make(chan *Link),
		closed:  make(chan struct{}),
	}
}

// ServeHTTP upgrades the request and waits until Accept takes the link
// or the listener closes.
func (l *WebSocketListener) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	select {
	case <-l.closed:
		http.Error(writer, "listener closed", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := l.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade has already written an error response.
		l.logger.Warn("websocket upgrade failed", "remote", request.RemoteAddr, "error", err)
		return
	}
	link := &Link{
		Reliable: NewWebSocketChannel(conn, l.codec),
		Remote:   "ws:" + request.RemoteAddr,
	}
	select {
	case l.links <- link:
	case <-l.closed:
		link.Close()
	case <-request.Context().Done():
		link.Close()
	}
}

// Accept returns the next upgraded link.
func (l *WebSocketListener) Accept(ctx context.Context) (*Link, error) {
	select {
	case link := <-l.links:
		return link, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns the address given to NewWebSocketListener.
func (l *WebSocketListener) Address() string { return l.address }

// Close stops handing out links. Pending upgrades are closed.
func (l *WebSocketListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// DialWebSocket connects to a host's relay endpoint, e.g.
// "ws://host:7892/session".
func DialWebSocket(ctx context.Context, url string, frameCodec FrameCodec) (*Link, error) {
	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing %s: %w (HTTP %d)", url, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Link{
		Reliable: NewWebSocketChannel(conn, frameCodec),
		Remote:   "ws:" + url,
	}, nil
}
