// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/termsync/lib/clock"
	"github.com/bureau-foundation/termsync/lib/metrics"
	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/replica"
	"github.com/bureau-foundation/termsync/resync"
	"github.com/bureau-foundation/termsync/terminal"
	"github.com/bureau-foundation/termsync/transport"
)

// Config configures a Client. Zero values take the defaults noted.
type Config struct {
	Replica replica.Config
	Resync  resync.ReceiverConfig

	// InitialRows is how much history to receive on connect. Zero
	// takes the host's default.
	InitialRows int

	// Lossy asks for live updates on the lossy channel when the link
	// has one.
	Lossy bool

	// AckInterval is how often the applied sequence is reported.
	// Default 1s.
	AckInterval time.Duration

	// TickInterval paces gap scans and request expiry. Default 50ms.
	TickInterval time.Duration

	// SendTimeout bounds one frame send. Default 10s.
	SendTimeout time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.AckInterval <= 0 {
		c.AckInterval = time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 50 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	c.Replica.Clock = c.Clock
	c.Replica.Logger = c.Logger
	c.Replica.Metrics = c.Metrics
	c.Resync.Clock = c.Clock
	c.Resync.Logger = c.Logger
	c.Resync.Metrics = c.Metrics
	return c
}

// ClosedError reports that the host ended the session deliberately.
type ClosedError struct {
	Reason  protocol.ShutdownReason
	Message string
}

func (e *ClosedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("host closed the session: %s", e.Reason)
	}
	return fmt.Sprintf("host closed the session: %s: %s", e.Reason, e.Message)
}

// Final reports whether reconnecting is pointless.
func (e *ClosedError) Final() bool {
	return e.Reason == protocol.ShutdownNormal || e.Reason == protocol.ShutdownHostExiting
}

var errLinkLost = errors.New("link lost")

// Client replicates one host session into its cache.
type Client struct {
	config Config
	logger *slog.Logger
	cache  *replica.Cache

	input   chan []byte
	session atomic.Pointer[string]
}

// New returns a client with an empty cache.
func New(config Config) *Client {
	config = config.withDefaults()
	return &Client{
		config: config,
		logger: config.Logger,
		cache:  replica.New(config.Replica),
		input:  make(chan []byte, 64),
	}
}

// Cache returns the replica the client fills.
func (c *Client) Cache() *replica.Cache { return c.cache }

// Session returns the host session id, empty before the first Hello.
func (c *Client) Session() string {
	if id := c.session.Load(); id != nil {
		return *id
	}
	return ""
}

// Input queues keystrokes for the host. It reports false when the
// queue is full.
func (c *Client) Input(data []byte) bool {
	select {
	case c.input <- append([]byte(nil), data...):
		return true
	default:
		return false
	}
}

// Run replicates over link until the link fails, the host closes the
// session (a *ClosedError) or ctx is done. It closes link.
func (c *Client) Run(ctx context.Context, link *transport.Link) error {
	defer link.Close()
	l := &linkRun{
		client:   c,
		link:     link,
		logger:   c.logger.With("remote", link.Remote),
		outbound: make(chan protocol.Frame, 16),
	}
	l.receiver = resync.NewReceiver(c.cache, 0, c.config.Resync)

	hello := protocol.Hello{
		Version:     protocol.Version,
		Generation:  link.Generation,
		InitialRows: c.config.InitialRows,
		Lossy:       c.config.Lossy && link.Lossy != nil,
	}
	if err := l.send(ctx, hello); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return l.receive(groupCtx, link.Reliable) })
	if link.Lossy != nil {
		group.Go(func() error { return l.receive(groupCtx, link.Lossy) })
	}
	group.Go(func() error { return l.pump(groupCtx) })
	err := group.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// linkRun is the state of one Run.
type linkRun struct {
	client   *Client
	link     *transport.Link
	logger   *slog.Logger
	receiver *resync.Receiver
	outbound chan protocol.Frame

	// attached is set by the first Hello this viewer can speak. Frames
	// other than Hello and Shutdown are dropped until then.
	attached    atomic.Bool
	snapshotted atomic.Bool
}

func (l *linkRun) receive(ctx context.Context, channel transport.Channel) error {
	metrics := l.client.config.Metrics
	for {
		data, err := channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrFrameTooLarge) {
				metrics.FrameDropped("too_large")
				continue
			}
			return fmt.Errorf("%w: %v", errLinkLost, err)
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			metrics.FrameDropped(protocol.DropReason(err))
			l.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		metrics.FrameReceived(frame.Kind().String())
		if err := l.dispatch(ctx, frame); err != nil {
			return err
		}
	}
}

func (l *linkRun) dispatch(ctx context.Context, frame protocol.Frame) error {
	cache := l.client.cache
	switch frame.(type) {
	case protocol.Hello, protocol.Shutdown:
	default:
		if !l.attached.Load() {
			l.client.config.Metrics.FrameDropped("before_hello")
			l.logger.Debug("dropping frame received before hello", "kind", frame.Kind())
			return nil
		}
	}
	switch frame := frame.(type) {
	case protocol.Hello:
		if frame.Version > protocol.Version {
			l.client.config.Metrics.FrameDropped(protocol.DropReason(protocol.ErrProtocolVersionMismatch))
			l.logger.Warn("dropping hello from a newer protocol", "host_version", frame.Version, "version", protocol.Version)
			return nil
		}
		l.attached.Store(true)
		session := frame.Session
		l.client.session.Store(&session)
		cache.ApplyHello(frame)
		l.logger.Info("attached to host session", "session", frame.Session, "floor", frame.Floor, "tail", frame.Tail)
	case protocol.SnapshotComplete:
		cache.ApplySnapshotComplete(frame)
		l.receiver.Advance(uint64(frame.AsOf))
		l.snapshotted.Store(true)
	case protocol.State:
		request, err := l.receiver.Receive(frame)
		return l.requestResync(ctx, request, err)
	case protocol.Heartbeat:
		request, err := l.receiver.Heartbeat(frame)
		return l.requestResync(ctx, request, err)
	case protocol.Shutdown:
		l.logger.Info("host closed the session", "reason", frame.Reason, "message", frame.Message)
		return &ClosedError{Reason: frame.Reason, Message: frame.Message}
	default:
		if !cache.Handle(frame) {
			l.client.config.Metrics.FrameDropped("unexpected")
			l.logger.Debug("ignoring unexpected frame", "kind", frame.Kind())
		}
	}
	return nil
}

// requestResync queues a resync request when the receiver found a gap.
// Before the first snapshot completes, gaps are expected and ignored.
func (l *linkRun) requestResync(ctx context.Context, request protocol.ResyncRequest, err error) error {
	if !errors.Is(err, resync.ErrDesyncDetected) || !l.snapshotted.Load() {
		return nil
	}
	select {
	case l.outbound <- request:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *linkRun) pump(ctx context.Context) error {
	config := l.client.config
	cache := l.client.cache
	ticker := config.Clock.NewTicker(config.TickInterval)
	defer ticker.Stop()
	ackTicker := config.Clock.NewTicker(config.AckInterval)
	defer ackTicker.Stop()
	var acked terminal.Seq

	for {
		changed := cache.Changed()
		if err := l.requestGaps(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			l.goodbye()
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
			for _, retry := range cache.Expire() {
				if err := l.send(ctx, retry); err != nil {
					return err
				}
			}
		case <-ackTicker.C:
			if applied := cache.Applied(); applied > acked {
				if err := l.send(ctx, protocol.Ack{Seq: applied}); err != nil {
					return err
				}
				acked = applied
			}
		case frame := <-l.outbound:
			if err := l.send(ctx, frame); err != nil {
				return err
			}
		case data := <-l.client.input:
			if err := l.send(ctx, protocol.Input{Data: data}); err != nil {
				return err
			}
		}
	}
}

// requestGaps sends every request the cache is ready to make.
func (l *linkRun) requestGaps(ctx context.Context) error {
	if !l.snapshotted.Load() {
		return nil
	}
	for {
		request, ok := l.client.cache.NextRequest()
		if !ok {
			return nil
		}
		if err := l.send(ctx, request); err != nil {
			return err
		}
	}
}

func (l *linkRun) send(ctx context.Context, frame protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, l.client.config.SendTimeout)
	defer cancel()
	if err := l.link.Reliable.Send(sendCtx, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: sending %s: %v", errLinkLost, frame.Kind(), err)
	}
	l.client.config.Metrics.FrameSent(frame.Kind().String())
	return nil
}

// goodbye tells the host the viewer is leaving. Best effort.
func (l *linkRun) goodbye() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = l.send(ctx, protocol.Shutdown{Reason: protocol.ShutdownNormal})
}
