// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/termsync/protocol"
	"github.com/bureau-foundation/termsync/replicate"
	"github.com/bureau-foundation/termsync/resync"
	"github.com/bureau-foundation/termsync/transport"
)

var (
	// errViewerGone ends a session whose viewer closed the link or
	// said goodbye.
	errViewerGone = errors.New("viewer gone")

	errSlowConsumer = errors.New("viewer not reading")
)

// session serves one link. Only the pump goroutine touches subscriber
// and sender.
type session struct {
	host   *Host
	link   *transport.Link
	id     string
	logger *slog.Logger

	inbound chan protocol.Frame

	subscriber *replicate.Subscriber
	lossy      bool
	sender     *resync.Sender
}

func newSession(h *Host, link *transport.Link) *session {
	id := uuid.NewString()
	return &session{
		host:    h,
		link:    link,
		id:      id,
		logger:  h.logger.With("subscriber", id, "remote", link.Remote),
		inbound: make(chan protocol.Frame, 64),
	}
}

func (s *session) run(ctx context.Context) error {
	hello, err := s.handshake(ctx)
	if err != nil {
		return err
	}

	config := s.host.config.Sync
	config.Logger = s.logger
	if hello.InitialRows > 0 {
		config.InitialSnapshotRows = hello.InitialRows
	}
	s.lossy = hello.Lossy && s.link.Lossy != nil
	config.LossyLive = s.lossy
	s.subscriber = replicate.NewSubscriber(s.host.store, config)
	s.logger.Info("viewer attached",
		"initial_rows", config.InitialSnapshotRows,
		"lossy", s.lossy,
		"generation", s.link.Generation,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.receive(groupCtx, s.link.Reliable) })
	if s.link.Lossy != nil {
		group.Go(func() error { return s.receive(groupCtx, s.link.Lossy) })
	}
	group.Go(func() error { return s.pump(groupCtx) })
	return group.Wait()
}

// handshake waits for the viewer's Hello and answers with the host's.
func (s *session) handshake(ctx context.Context) (protocol.Hello, error) {
	handshakeCtx, cancel := context.WithTimeout(ctx, s.host.config.HandshakeTimeout)
	defer cancel()
	var frame protocol.Frame
	for frame == nil {
		data, err := s.link.Reliable.Receive(handshakeCtx)
		if err != nil {
			return protocol.Hello{}, fmt.Errorf("waiting for viewer hello: %w", err)
		}
		frame, err = protocol.Decode(data)
		if err != nil {
			// Undecodable frames are dropped; the handshake timeout
			// bounds how long a viewer can keep sending them.
			s.host.config.Metrics.FrameDropped(protocol.DropReason(err))
			s.logger.Debug("dropping undecodable frame before hello", "error", err)
		}
	}
	hello, ok := frame.(protocol.Hello)
	if !ok {
		s.shutdown(protocol.ShutdownProtocolError, "expected hello")
		return protocol.Hello{}, fmt.Errorf("viewer opened with %s, want hello", frame.Kind())
	}
	s.host.config.Metrics.FrameReceived(frame.Kind().String())

	bounds := s.host.store.Bounds()
	reply := protocol.Hello{
		Version:    protocol.Version,
		Session:    s.host.session,
		Generation: s.link.Generation,
		Floor:      bounds.Floor,
		Tail:       bounds.Tail,
		Head:       bounds.Head,
	}
	if err := s.send(ctx, s.link.Reliable, reply); err != nil {
		return protocol.Hello{}, err
	}
	return hello, nil
}

// receive decodes frames from channel and hands them to the pump.
// Frames that fail to decode are counted and skipped.
func (s *session) receive(ctx context.Context, channel transport.Channel) error {
	metrics := s.host.config.Metrics
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
			s.logger.Debug("viewer channel closed", "error", err)
			return errViewerGone
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			metrics.FrameDropped(protocol.DropReason(err))
			s.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		metrics.FrameReceived(frame.Kind().String())
		select {
		case s.inbound <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pump drives the subscriber: every wake-up runs one Tick and sends
// what it produced.
func (s *session) pump(ctx context.Context) error {
	config := s.host.config
	ticker := config.Clock.NewTicker(config.TickInterval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if s.lossy {
		heartbeatTicker := config.Clock.NewTicker(config.HeartbeatInterval)
		defer heartbeatTicker.Stop()
		heartbeat = heartbeatTicker.C
	}

	for {
		changed := s.host.store.Changed()
		if err := s.flush(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			s.shutdown(protocol.ShutdownHostExiting, "")
			return ctx.Err()
		case <-changed:
		case <-ticker.C:
		case frame := <-s.inbound:
			if err := s.handle(ctx, frame); err != nil {
				return err
			}
		case <-heartbeat:
			if s.sender != nil {
				if err := s.sendLossy(ctx, s.sender.Heartbeat()); err != nil {
					return err
				}
			}
		}
	}
}

// flush sends what the subscriber has ready and, once the initial
// snapshot is out, the lossy lane's states.
func (s *session) flush(ctx context.Context) error {
	for _, frame := range s.subscriber.Tick() {
		if err := s.send(ctx, s.link.Reliable, frame); err != nil {
			return err
		}
	}
	if !s.lossy {
		return nil
	}
	cursor := s.subscriber.Cursor()
	if !cursor.Snapshotted {
		return nil
	}
	if s.sender == nil {
		resyncConfig := s.host.config.Resync
		resyncConfig.Logger = s.logger
		s.sender = resync.NewSender(s.host.store, uint64(cursor.Sent), resyncConfig)
	}
	for _, state := range s.sender.Next() {
		if err := s.sendLossy(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) handle(ctx context.Context, frame protocol.Frame) error {
	switch frame := frame.(type) {
	case protocol.RequestBackfill:
		s.subscriber.RequestBackfill(frame)
	case protocol.Ack:
		s.subscriber.Ack(frame.Seq)
	case protocol.ResyncRequest:
		if s.sender == nil {
			// Without a lossy lane the viewer can only have lost
			// track by missing the snapshot; send a new one.
			s.subscriber.Resnapshot()
			return nil
		}
		return s.send(ctx, s.link.Reliable, s.sender.Answer(frame))
	case protocol.Input:
		if err := s.host.writeInput(frame.Data); err != nil {
			s.logger.Warn("forwarding viewer input failed", "bytes", len(frame.Data), "error", err)
		}
	case protocol.Shutdown:
		s.logger.Info("viewer said goodbye", "reason", frame.Reason, "message", frame.Message)
		return errViewerGone
	default:
		s.host.config.Metrics.FrameDropped("unexpected")
		s.logger.Debug("ignoring unexpected frame", "kind", frame.Kind())
	}
	return nil
}

func (s *session) send(ctx context.Context, channel transport.Channel, frame protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.host.config.SendTimeout)
	defer cancel()
	if err := channel.Send(sendCtx, data); err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("disconnecting slow viewer", "kind", frame.Kind(), "timeout", s.host.config.SendTimeout)
			return errSlowConsumer
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, transport.ErrFrameTooLarge) {
			return fmt.Errorf("sending %s: %w", frame.Kind(), err)
		}
		s.logger.Debug("send failed", "kind", frame.Kind(), "error", err)
		return errViewerGone
	}
	s.host.config.Metrics.FrameSent(frame.Kind().String())
	return nil
}

// sendLossy sends on the lossy channel, falling back to the reliable
// one for frames too large for a single lossy message.
func (s *session) sendLossy(ctx context.Context, frame protocol.Frame) error {
	err := s.send(ctx, s.link.Lossy, frame)
	if errors.Is(err, transport.ErrFrameTooLarge) {
		return s.send(ctx, s.link.Reliable, frame)
	}
	return err
}

// shutdown tells the viewer why the link is about to close. It is best
// effort: the link may already be gone.
func (s *session) shutdown(reason protocol.ShutdownReason, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.send(ctx, s.link.Reliable, protocol.Shutdown{Reason: reason, Message: message}); err != nil {
		s.logger.Debug("sending shutdown", "reason", reason, "error", err)
	}
}
