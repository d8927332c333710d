// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/termsync/lib/clock"
)

// Data channel labels. The viewer opens both; the host accepts only
// these two.
const (
	reliableChannelLabel = "termsync-reliable"
	lossyChannelLabel    = "termsync-lossy"
)

const (
	defaultSignalPollInterval = 500 * time.Millisecond
	defaultNegotiationTimeout = 30 * time.Second
	iceGatherTimeout          = 15 * time.Second
)

// WebRTCConfig configures both ends of a WebRTC link.
type WebRTCConfig struct {
	// LocalID names this endpoint in signaling. Must not contain "|".
	LocalID  string
	Signaler Signaler
	ICE      ICEConfig
	// Negotiator tracks generations. Nil creates a private one, which
	// is enough unless several dialers share an endpoint id.
	Negotiator *Negotiator

	Codec FrameCodec
	// MaxMessageSize bounds frames on the lossy channel. Zero uses
	// DefaultMaxMessageSize.
	MaxMessageSize int

	// PollInterval is how often signaling is polled. Default 500ms.
	PollInterval time.Duration
	// Timeout bounds one negotiation attempt. Default 30s.
	Timeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c WebRTCConfig) withDefaults() WebRTCConfig {
	if c.Negotiator == nil {
		c.Negotiator = NewNegotiator()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultSignalPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultNegotiationTimeout
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// newPeerConnection creates a PeerConnection with detached data
// channels and loopback candidates enabled (same-machine sessions and
// tests have only loopback).
func newPeerConnection(ice ICEConfig) (*webrtc.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	settingEngine.SetIncludeLoopbackCandidate(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: ice.Servers})
}

// gatherLocalDescription sets description as the local description
// and waits for ICE gathering to finish, returning the complete SDP.
func gatherLocalDescription(ctx context.Context, pc *webrtc.PeerConnection, description webrtc.SessionDescription, clk clock.Clock) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-clk.After(iceGatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

// channelPair collects the two detached data channels of a link as they
// open.
type channelPair struct {
	mu       sync.Mutex
	reliable io.ReadWriteCloser
	lossy    io.ReadWriteCloser
	ready    chan struct{}
	failed   chan error
}

func newChannelPair() *channelPair {
	return &channelPair{ready: make(chan struct{}), failed: make(chan error, 2)}
}

// attach detaches dc once it opens and records it under its label.
func (p *channelPair) attach(dc *webrtc.DataChannel) {
	label := dc.Label()
	if label != reliableChannelLabel && label != lossyChannelLabel {
		dc.OnOpen(func() { dc.Close() })
		return
	}
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			p.failed <- fmt.Errorf("detaching %s: %w", label, err)
			return
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if label == reliableChannelLabel {
			p.reliable = raw
		} else {
			p.lossy = raw
		}
		if p.reliable != nil && p.lossy != nil {
			close(p.ready)
		}
	})
}

func (p *channelPair) wait(ctx context.Context, deadline <-chan time.Time) error {
	select {
	case <-p.ready:
		return nil
	case err := <-p.failed:
		return err
	case <-deadline:
		return fmt.Errorf("data channels did not open in time")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *channelPair) link(config WebRTCConfig, pc *webrtc.PeerConnection, remote string, generation uint64) *Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	reliable := NewDataChannelConn(p.reliable,
		config.LocalID+"/"+reliableChannelLabel,
		remote+"/"+reliableChannelLabel)
	return &Link{
		Reliable:   NewStreamChannel(reliable, config.Codec),
		Lossy:      NewDataChannel(p.lossy, config.Codec, config.MaxMessageSize),
		Generation: generation,
		Remote:     "webrtc:" + remote,
		release:    pc.Close,
	}
}

// DialWebRTC negotiates a link to the host named remoteID: it opens the
// reliable and lossy data channels, publishes an offer under a new
// generation and waits for the matching answer. Answers to older
// generations are ignored.
func DialWebRTC(ctx context.Context, config WebRTCConfig, remoteID string) (*Link, error) {
	config = config.withDefaults()
	generation := config.Negotiator.Next(remoteID)
	logger := config.Logger.With("peer", remoteID, "generation", generation)

	pc, err := newPeerConnection(config.ICE)
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	link, err := dialWebRTC(ctx, config, pc, remoteID, generation, logger)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return link, nil
}

func dialWebRTC(ctx context.Context, config WebRTCConfig, pc *webrtc.PeerConnection, remoteID string, generation uint64, logger *slog.Logger) (*Link, error) {
	deadline := config.Clock.After(config.Timeout)
	pair := newChannelPair()

	ordered, unordered := true, false
	var noRetransmits uint16
	reliable, err := pc.CreateDataChannel(reliableChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating reliable data channel: %w", err)
	}
	lossy, err := pc.CreateDataChannel(lossyChannelLabel, &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &noRetransmits,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lossy data channel: %w", err)
	}
	pair.attach(reliable)
	pair.attach(lossy)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating SDP offer: %w", err)
	}
	sdp, err := gatherLocalDescription(ctx, pc, offer, config.Clock)
	if err != nil {
		return nil, err
	}
	if err := config.Signaler.PublishOffer(ctx, Signal{From: config.LocalID, To: remoteID, Generation: generation, SDP: sdp}); err != nil {
		return nil, fmt.Errorf("publishing SDP offer: %w", err)
	}
	logger.Info("WebRTC offer published")

	answer, err := waitForAnswer(ctx, config, remoteID, generation, deadline, logger)
	if err != nil {
		return nil, fmt.Errorf("waiting for SDP answer from %s: %w", remoteID, err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return nil, fmt.Errorf("setting remote description: %w", err)
	}
	if err := pair.wait(ctx, deadline); err != nil {
		return nil, err
	}
	logger.Info("WebRTC link established")
	return pair.link(config, pc, remoteID, generation), nil
}

func waitForAnswer(ctx context.Context, config WebRTCConfig, remoteID string, generation uint64, deadline <-chan time.Time, logger *slog.Logger) (Signal, error) {
	ticker := config.Clock.NewTicker(config.PollInterval)
	defer ticker.Stop()
	for {
		answers, err := config.Signaler.PollAnswers(ctx, config.LocalID)
		if err != nil {
			logger.Warn("polling for SDP answer failed", "error", err)
		}
		for _, answer := range answers {
			if answer.From != remoteID {
				continue
			}
			if answer.Generation != generation {
				logger.Debug("ignoring answer from another generation", "answer_generation", answer.Generation)
				continue
			}
			return answer, nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return Signal{}, fmt.Errorf("timed out after %s", config.Timeout)
		case <-ctx.Done():
			return Signal{}, ctx.Err()
		}
	}
}

var _ Listener = (*WebRTCListener)(nil)

// WebRTCListener answers offers addressed to its LocalID and yields a
// link per viewer once both data channels are open. A newer offer from
// the same viewer replaces its previous connection; offers from older
// generations are ignored.
type WebRTCListener struct {
	config WebRTCConfig

	startOnce sync.Once
	links     chan *Link

	mu    sync.Mutex
	peers map[string]*webrtcPeer

	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
}

type webrtcPeer struct {
	connection *webrtc.PeerConnection
	generation uint64
}

// NewWebRTCListener creates a listener. Signaling polling starts with
// the first Accept.
func NewWebRTCListener(config WebRTCConfig) *WebRTCListener {
	return &WebRTCListener{
		config: config.withDefaults(),
		links:  make(chan *Link, 8),
		peers:  make(map[string]*webrtcPeer),
		closed: make(chan struct{}),
	}
}

// Accept returns the next established link.
func (l *WebRTCListener) Accept(ctx context.Context) (*Link, error) {
	l.startOnce.Do(func() {
		pollContext, cancel := context.WithCancel(context.Background())
		l.cancel = cancel
		go l.pollOffers(pollContext)
	})
	select {
	case link := <-l.links:
		return link, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns the signaling id viewers dial.
func (l *WebRTCListener) Address() string { return l.config.LocalID }

// Close stops polling and closes connections that have not yet been
// handed out. Links returned by Accept are owned by the caller.
func (l *WebRTCListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		if l.cancel != nil {
			l.cancel()
		}
	})
	return nil
}

func (l *WebRTCListener) pollOffers(ctx context.Context) {
	ticker := l.config.Clock.NewTicker(l.config.PollInterval)
	defer ticker.Stop()
	for {
		offers, err := l.config.Signaler.PollOffers(ctx, l.config.LocalID)
		if err != nil {
			l.config.Logger.Warn("polling for SDP offers failed", "error", err)
		}
		for _, offer := range offers {
			l.handleOffer(ctx, offer)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (l *WebRTCListener) handleOffer(ctx context.Context, offer Signal) {
	logger := l.config.Logger.With("peer", offer.From, "generation", offer.Generation)
	if !l.config.Negotiator.Observe(offer.From, offer.Generation) {
		logger.Info("ignoring stale WebRTC offer", "current_generation", l.config.Negotiator.Current(offer.From))
		return
	}

	l.mu.Lock()
	if existing, ok := l.peers[offer.From]; ok {
		if existing.generation == offer.Generation {
			l.mu.Unlock()
			return
		}
		// The viewer renegotiated; its previous connection is dead
		// to it.
		existing.connection.Close()
		delete(l.peers, offer.From)
	}
	l.mu.Unlock()

	pc, err := newPeerConnection(l.config.ICE)
	if err != nil {
		logger.Error("creating PeerConnection failed", "error", err)
		return
	}
	l.mu.Lock()
	l.peers[offer.From] = &webrtcPeer{connection: pc, generation: offer.Generation}
	l.mu.Unlock()

	if err := l.answer(ctx, pc, offer, logger); err != nil {
		logger.Error("answering WebRTC offer failed", "error", err)
		l.forget(offer.From, pc)
		pc.Close()
	}
}

func (l *WebRTCListener) answer(ctx context.Context, pc *webrtc.PeerConnection, offer Signal, logger *slog.Logger) error {
	pair := newChannelPair()
	pc.OnDataChannel(pair.attach)
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Debug("ICE state change", "state", state.String())
		if state == webrtc.ICEConnectionStateClosed || state == webrtc.ICEConnectionStateFailed {
			l.forget(offer.From, pc)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	sdp, err := gatherLocalDescription(ctx, pc, answer, l.config.Clock)
	if err != nil {
		return err
	}
	if err := l.config.Signaler.PublishAnswer(ctx, Signal{From: l.config.LocalID, To: offer.From, Generation: offer.Generation, SDP: sdp}); err != nil {
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	logger.Info("WebRTC offer answered")

	// Channel opening completes asynchronously; do not hold up the
	// poller for other viewers.
	go func() {
		if err := pair.wait(ctx, l.config.Clock.After(l.config.Timeout)); err != nil {
			logger.Warn("WebRTC data channels failed to open", "error", err)
			l.forget(offer.From, pc)
			pc.Close()
			return
		}
		link := pair.link(l.config, pc, offer.From, offer.Generation)
		select {
		case l.links <- link:
		case <-l.closed:
			link.Close()
		}
	}()
	return nil
}

// forget removes the peer entry if it still refers to pc.
func (l *WebRTCListener) forget(peer string, pc *webrtc.PeerConnection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.peers[peer]; ok && current.connection == pc {
		delete(l.peers, peer)
	}
}
