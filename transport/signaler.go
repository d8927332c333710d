// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// Signaler exchanges WebRTC session descriptions between a viewer and a
// host. Signaling is vanilla ICE: all candidates are gathered before
// the SDP is published, so establishment takes exactly one round trip
// (offer then answer).
type Signaler interface {
	// PublishOffer stores a complete SDP offer from signal.From to
	// signal.To, replacing any earlier offer between the pair.
	PublishOffer(ctx context.Context, signal Signal) error

	// PublishAnswer stores the answer to an offer. signal.From is the
	// answerer, signal.To the offerer, and signal.Generation the
	// offer's generation.
	PublishAnswer(ctx context.Context, signal Signal) error

	// PollOffers returns offers directed at localID that this caller
	// has not seen yet.
	PollOffers(ctx context.Context, localID string) ([]Signal, error)

	// PollAnswers returns answers to offers made by localID that this
	// caller has not seen yet.
	PollAnswers(ctx context.Context, localID string) ([]Signal, error)
}

// Signal is one offer or answer.
type Signal struct {
	From string `json:"from"`
	To   string `json:"to"`
	// Generation numbers the offerer's negotiation attempts for this
	// pair. It increases with every new offer; an answer carries the
	// generation of the offer it answers.
	Generation uint64 `json:"generation"`
	// SDP is the complete session description with all ICE
	// candidates embedded.
	SDP string `json:"sdp"`
}

// signalingSeparator joins the two endpoint ids of a signal key. It is
// not valid in endpoint ids.
const signalingSeparator = "|"

func signalKey(offerer, answerer string) string {
	return offerer + signalingSeparator + answerer
}

// Negotiator tracks negotiation generations per remote peer. Outbound
// offers take increasing generations from Next; inbound signals whose
// generation is older than the newest seen for their peer are stale
// and must be ignored, never answered or applied.
type Negotiator struct {
	mu     sync.Mutex
	newest map[string]uint64
}

// NewNegotiator returns an empty Negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{newest: make(map[string]uint64)}
}

// Next allocates the generation for a new outbound attempt to peer.
func (n *Negotiator) Next(peer string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newest[peer]++
	return n.newest[peer]
}

// Current returns the newest generation known for peer.
func (n *Negotiator) Current(peer string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.newest[peer]
}

// Observe records an inbound signal's generation and reports whether
// the signal is current. A newer generation supersedes all earlier
// ones; an equal generation is current (a retransmission); an older
// one is stale.
func (n *Negotiator) Observe(peer string, generation uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	newest := n.newest[peer]
	if generation < newest {
		return false
	}
	n.newest[peer] = generation
	return true
}
